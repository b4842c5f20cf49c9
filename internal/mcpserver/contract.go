package mcpserver

// DeckFormatContract describes the spreadsheet layout dailymail reads decks
// from, for LLM consumers that create or edit decks.
const DeckFormatContract = `# dailymail Deck Format

A deck is one spreadsheet, published as CSV (or an .xlsx workbook on disk,
first sheet only).

## Layout

` + "```" + `csv
Word,Meaning,Example,Learned
apple,qua tao,"I ate an apple, then a pear.",TRUE
book,quyen sach,,
` + "```" + `

## Rules

1. **Line 1 is the header.** Each cell names a column. An empty header cell
   is addressed as ` + "`" + `colN` + "`" + ` (N = zero-based column position).
2. **Rows are numbered by line.** The header is row 1, the first data line is
   row 2. Blank lines are skipped but still count, so row numbers always match
   the spreadsheet. Tools such as ` + "`" + `mark_learned` + "`" + ` take this row number.
3. **Quoting.** Wrap a cell in double quotes when it contains a comma. Write
   a literal quote inside a quoted cell as two quotes (` + "`" + `""` + "`" + `).
4. **One record per line.** Line breaks inside quoted cells are not
   supported.
5. **Learned column.** Each deck names one column (default ` + "`" + `Learned` + "`" + `).
   A cell equal to ` + "`" + `TRUE` + "`" + ` (any case, surrounding spaces ignored) marks the
   row learned; learned rows are never sampled. Rows can also be marked from
   mail links or the ` + "`" + `mark_learned` + "`" + ` tool without editing the sheet.
6. **Missing cells** at the end of a line are empty. Extra cells beyond the
   header are kept as ` + "`" + `colN` + "`" + `.
`
