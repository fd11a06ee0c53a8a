package readers

import (
	"bytes"
	"fmt"
)

// scanState is the state of the CSV record machine.
type scanState uint8

const (
	stateFieldStart scanState = iota
	stateInField
	stateInQuoted
	stateQuoteInQuoted
)

// recordScanner splits RFC 4180 input into records. Quoted fields may
// contain delimiters, doubled quotes and line breaks; CRLF and CR line
// endings are accepted.
type recordScanner struct {
	delimiter byte
	state     scanState
	field     []byte
	record    []string
	line      int
}

func newRecordScanner(delimiter byte) *recordScanner {
	return &recordScanner{delimiter: delimiter}
}

// Scan returns every non-blank record of data.
func (s *recordScanner) Scan(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = normalizeLineEndings(data)

	var records [][]string
	s.state = stateFieldStart
	s.field = s.field[:0]
	s.record = nil
	s.line = 1
	quotedStart := 0

	endField := func() {
		s.record = append(s.record, string(s.field))
		s.field = s.field[:0]
	}
	endRecord := func() {
		endField()
		if !(len(s.record) == 1 && s.record[0] == "") {
			records = append(records, s.record)
		}
		s.record = nil
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch s.state {
		case stateFieldStart:
			switch c {
			case '"':
				s.state = stateInQuoted
				quotedStart = s.line
			case s.delimiter:
				endField()
			case '\n':
				endRecord()
				s.line++
			default:
				s.field = append(s.field, c)
				s.state = stateInField
			}

		case stateInField:
			switch c {
			case s.delimiter:
				endField()
				s.state = stateFieldStart
			case '\n':
				endRecord()
				s.line++
				s.state = stateFieldStart
			default:
				s.field = append(s.field, c)
			}

		case stateInQuoted:
			if c == '"' {
				s.state = stateQuoteInQuoted
				continue
			}
			if c == '\n' {
				s.line++
			}
			s.field = append(s.field, c)

		case stateQuoteInQuoted:
			switch c {
			case '"':
				s.field = append(s.field, '"')
				s.state = stateInQuoted
			case s.delimiter:
				endField()
				s.state = stateFieldStart
			case '\n':
				endRecord()
				s.line++
				s.state = stateFieldStart
			default:
				// Text after a closing quote joins the field.
				s.field = append(s.field, c)
				s.state = stateInField
			}
		}
	}

	switch s.state {
	case stateInQuoted:
		return nil, fmt.Errorf("line %d: unterminated quoted field", quotedStart)
	case stateFieldStart:
		if len(s.record) > 0 {
			endRecord()
		}
	default:
		endRecord()
	}
	return records, nil
}

// normalizeLineEndings rewrites CRLF and CR as LF.
func normalizeLineEndings(data []byte) []byte {
	if bytes.IndexByte(data, '\r') < 0 {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\r' {
			out = append(out, '\n')
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			}
			continue
		}
		out = append(out, data[i])
	}
	return out
}
