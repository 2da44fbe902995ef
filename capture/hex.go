package capture

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/justapithecus/ticktape/itch"
)

// ParseHexMessages reads the text fixture format.
//
// Each non-empty line is one message in hex, framed with start on its
// first byte and end on its last. Whitespace between bytes is ignored and
// '#' starts a comment. A '!' before a byte marks that event valid=false.
// A line beginning with '-' is fed unframed: no start and no end flags.
//
//	# add order, byte 15 corrupted
//	41 0102 0304 000102030405 aabbccdd !ee ff1122 ...
//	- dead beef
func ParseHexMessages(r io.Reader) ([]itch.ByteEvent, error) {
	var events []itch.ByteEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		framed := true
		if strings.HasPrefix(text, "-") {
			framed = false
			text = text[1:]
		}

		msg, err := parseHexLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(msg) == 0 {
			continue
		}
		if framed {
			msg[0].Start = true
			msg[len(msg)-1].End = true
		}
		events = append(events, msg...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func parseHexLine(s string) ([]itch.ByteEvent, error) {
	var out []itch.ByteEvent
	invalid := false
	hi := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			if hi >= 0 {
				return nil, fmt.Errorf("column %d: split hex byte", i+1)
			}
			continue
		case c == '!':
			if hi >= 0 {
				return nil, fmt.Errorf("column %d: '!' inside hex byte", i+1)
			}
			invalid = true
			continue
		}
		v, ok := hexNibble(c)
		if !ok {
			return nil, fmt.Errorf("column %d: invalid hex character %q", i+1, c)
		}
		if hi < 0 {
			hi = v
			continue
		}
		out = append(out, itch.ByteEvent{Byte: byte(hi<<4 | v), Valid: !invalid})
		hi = -1
		invalid = false
	}
	if hi >= 0 {
		return nil, fmt.Errorf("odd number of hex digits")
	}
	if invalid {
		return nil, fmt.Errorf("trailing '!' with no byte")
	}
	return out, nil
}

func hexNibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// FormatHexMessages writes events in the fixture format, one line per
// start…end run. Events outside a run are written as '-' lines. A run cut
// short by the next start is written as if it had ended.
func FormatHexMessages(w io.Writer, events []itch.ByteEvent) error {
	bw := bufio.NewWriter(w)
	var line strings.Builder
	open := false
	flush := func(prefix string) error {
		if line.Len() == 0 {
			return nil
		}
		_, err := fmt.Fprintf(bw, "%s%s\n", prefix, strings.TrimSpace(line.String()))
		line.Reset()
		return err
	}

	for _, ev := range events {
		if ev.Start {
			prefix := ""
			if !open {
				prefix = "- "
			}
			if err := flush(prefix); err != nil {
				return err
			}
			open = true
		}
		if !ev.Valid {
			line.WriteByte('!')
		}
		fmt.Fprintf(&line, "%02x ", ev.Byte)
		if ev.End && open {
			if err := flush(""); err != nil {
				return err
			}
			open = false
		}
	}
	prefix := ""
	if !open {
		prefix = "- "
	}
	if err := flush(prefix); err != nil {
		return err
	}
	return bw.Flush()
}
