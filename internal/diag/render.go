package diag

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// RenderText writes one diagnostic in the teacher-adjacent text form
// from spec.md §4.5:
//
//	file:line:col: error: <msg>
//	  code: <code>
//	  record: k=… id=… tag=…
//
// followed by up to ctxLines of surrounding source, read from
// sourceFile if non-empty, with "> " marking the focused line.
func RenderText(w io.Writer, d Diagnostic, sourceFile string, ctxLines int) error {
	ctx := d.Context
	file := sourceFile
	if file == "" {
		file = "<input>"
	}
	line := ctx.Line
	col := 0

	if _, err := fmt.Fprintf(w, "%s:%d:%d: error: %s\n", file, line, col, d.Msg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  code: %s\n", d.Code); err != nil {
		return err
	}
	idPart := ""
	if ctx.HasID {
		idPart = fmt.Sprintf(" id=%d", ctx.RecID)
	}
	tagPart := ""
	if ctx.Tag != "" {
		tagPart = fmt.Sprintf(" tag=%s", ctx.Tag)
	}
	if _, err := fmt.Fprintf(w, "  record: k=%s%s%s\n", ctx.Kind, idPart, tagPart); err != nil {
		return err
	}

	if sourceFile != "" && ctxLines > 0 && line > 0 {
		snippet, err := readContext(sourceFile, line, ctxLines)
		if err == nil {
			for _, cl := range snippet {
				marker := "  "
				if cl.line == line {
					marker = "> "
				}
				if _, err := fmt.Fprintf(w, "%s%d: %s\n", marker, cl.line, cl.text); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type contextLine struct {
	line int
	text string
}

func readContext(path string, focus, each int) ([]contextLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lo := focus - each
	if lo < 1 {
		lo = 1
	}
	hi := focus + each

	var out []contextLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		if n < lo {
			continue
		}
		if n > hi {
			break
		}
		out = append(out, contextLine{line: n, text: scanner.Text()})
	}
	return out, scanner.Err()
}

// RenderJSON writes one diagnostic as the {ir, k:"diag", ...} shape
// from spec.md §6. Built by hand rather than encoding/json so field
// order and optional-field omission match the wire shape exactly.
func RenderJSON(w io.Writer, d Diagnostic) error {
	var b strings.Builder
	b.WriteString(`{"ir":"sir-v1.0","k":"diag","level":"error"`)
	fmt.Fprintf(&b, `,"msg":%s`, jsonString(d.Msg))
	fmt.Fprintf(&b, `,"code":%s`, jsonString(d.Code))

	b.WriteString(`,"about":{"k":`)
	b.WriteString(jsonString(d.Context.Kind))
	if d.Context.HasID {
		fmt.Fprintf(&b, `,"id":%d`, d.Context.RecID)
	}
	if d.Context.Tag != "" {
		fmt.Fprintf(&b, `,"tag":%s`, jsonString(d.Context.Tag))
	}
	b.WriteString("}")

	if d.Context.HasSrc {
		fmt.Fprintf(&b, `,"src_ref":%d`, d.Context.SrcRef)
	}
	if d.Context.HasLoc {
		fmt.Fprintf(&b, `,"loc":{"line":%d,"col":%d}`, d.Context.Loc.Line, d.Context.Loc.Col)
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
