package editor

// StarterTemplate fills the buffer of a new document and is the fallback
// buffer after a failed load.
const StarterTemplate = `# Welcome to Markdown Preview

Start typing on the left and watch the preview update on the right.

## Formatting

- **Bold** with ` + "`**text**`" + `
- *Italic* with ` + "`*text*`" + `
- ~~Strikethrough~~ with ` + "`~~text~~`" + `
- [Links](https://example.com) with ` + "`[text](url)`" + `

## Lists

1. First item
2. Second item
   - Nested item

- [x] Write some markdown
- [ ] Save the document

## Code

` + "```go" + `
func main() {
	fmt.Println("hello")
}
` + "```" + `

## Tables

| Feature | Supported |
|---------|-----------|
| Tables  | Yes       |
| Tasks   | Yes       |

> Tip: press save to keep this document. Auto-save starts after the first save.
`
