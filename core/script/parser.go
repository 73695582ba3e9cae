package script

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a malformed script line. Parsing is all-or-nothing:
// the first error aborts the parse and no command is returned.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func errorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// Parse converts script text into its ordered command sequence. Blank
// lines and full-line # comments are skipped; inline trailing comments
// are not supported. Every command is fully validated here so that a
// malformed script fails before any side effect occurs.
func Parse(text string) ([]Command, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var cmds []Command
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := parseLine(i+1, line)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func parseLine(n int, line string) (Command, error) {
	keyword, rest := cutField(line)
	switch keyword {
	case "CFG_CLIENT_ID":
		args, err := fields(n, keyword, rest, 1)
		if err != nil {
			return nil, err
		}
		return ClientID{pos{n}, args[0]}, nil
	case "CFG_CLEAN_SESSION":
		args, err := fields(n, keyword, rest, 1)
		if err != nil {
			return nil, err
		}
		enabled, err := parseYesNo(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		return CleanSession{pos{n}, enabled}, nil
	case "CFG_KEEPALIVE":
		args, err := fields(n, keyword, rest, 1)
		if err != nil {
			return nil, err
		}
		secs, err := parseInt(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		if secs == 0 {
			return nil, errorf(n, "%s: keepalive must be positive", keyword)
		}
		return Keepalive{pos{n}, secs}, nil
	case "CFG_USER":
		args, err := fields(n, keyword, rest, 2)
		if err != nil {
			return nil, err
		}
		return Credentials{pos{n}, args[0], args[1]}, nil
	case "CFG_USE_TLS":
		args, err := fields(n, keyword, rest, 1)
		if err != nil {
			return nil, err
		}
		enabled, err := parseYesNo(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		return UseTLS{pos{n}, enabled}, nil
	case "CFG_TLS_CERT":
		args, err := fields(n, keyword, rest, 2)
		if err != nil {
			return nil, err
		}
		return TLSCert{pos{n}, args[0], args[1]}, nil
	case "CFG_PUB_EACH":
		args, payload, err := fieldsWithPayload(n, keyword, rest, 3)
		if err != nil {
			return nil, err
		}
		secs, err := parseInt(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		if secs == 0 {
			return nil, errorf(n, "%s: interval must be positive", keyword)
		}
		qos, err := parseQoS(n, keyword, args[1])
		if err != nil {
			return nil, err
		}
		return PubEach{pos{n}, time.Duration(secs) * time.Second, qos, args[2], payload}, nil
	case "CONNECT":
		args, err := fields(n, keyword, rest, 2)
		if err != nil {
			return nil, err
		}
		port, err := parseInt(n, keyword, args[1])
		if err != nil {
			return nil, err
		}
		if port == 0 || port > 65535 {
			return nil, errorf(n, "%s: port %d out of range", keyword, port)
		}
		return Connect{pos{n}, args[0], port}, nil
	case "DISCONNECT":
		if rest != "" {
			return nil, errorf(n, "%s takes no arguments", keyword)
		}
		return Disconnect{pos{n}}, nil
	case "DELAY", "DELAY_MS", "DELAY_H":
		args, err := fields(n, keyword, rest, 1)
		if err != nil {
			return nil, err
		}
		v, err := parseInt(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		var d time.Duration
		switch keyword {
		case "DELAY":
			d = time.Duration(v) * time.Second
		case "DELAY_MS":
			d = time.Duration(v) * time.Millisecond
		case "DELAY_H":
			d = time.Duration(v) * time.Hour
		}
		return Delay{pos{n}, d}, nil
	case "PUB":
		args, payload, err := fieldsWithPayload(n, keyword, rest, 2)
		if err != nil {
			return nil, err
		}
		qos, err := parseQoS(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		return Pub{pos{n}, qos, args[1], payload}, nil
	case "SUB":
		args, err := fields(n, keyword, rest, 3)
		if err != nil {
			return nil, err
		}
		qos, err := parseQoS(n, keyword, args[0])
		if err != nil {
			return nil, err
		}
		return Sub{pos{n}, qos, args[1], args[2]}, nil
	}
	return nil, errorf(n, "unknown keyword %q", keyword)
}

// fields splits rest on whitespace and enforces an exact argument count.
func fields(n int, keyword, rest string, want int) ([]string, error) {
	args := strings.Fields(rest)
	if len(args) != want {
		return nil, errorf(n, "%s expects %d argument(s), got %d", keyword, want, len(args))
	}
	return args, nil
}

// fieldsWithPayload splits rest into lead whitespace-separated arguments
// followed by a mandatory double-quoted payload. The payload is the only
// field allowed to contain whitespace; \" and \\ escapes are honored.
func fieldsWithPayload(n int, keyword, rest string, lead int) ([]string, string, error) {
	args := make([]string, 0, lead)
	for i := 0; i < lead; i++ {
		var arg string
		arg, rest = cutField(rest)
		if arg == "" {
			return nil, "", errorf(n, "%s expects %d argument(s) before the payload", keyword, lead)
		}
		args = append(args, arg)
	}
	payload, err := unquote(n, keyword, rest)
	if err != nil {
		return nil, "", err
	}
	return args, payload, nil
}

func unquote(n int, keyword, s string) (string, error) {
	if len(s) < 2 || s[0] != '"' {
		return "", errorf(n, "%s: payload must be double-quoted", keyword)
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		switch c := s[i]; c {
		case '\\':
			if i+1 >= len(s) {
				return "", errorf(n, "%s: dangling escape in payload", keyword)
			}
			next := s[i+1]
			if next != '"' && next != '\\' {
				return "", errorf(n, "%s: unsupported escape \\%c in payload", keyword, next)
			}
			b.WriteByte(next)
			i += 2
		case '"':
			if i != len(s)-1 {
				return "", errorf(n, "%s: unexpected text after payload", keyword)
			}
			return b.String(), nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", errorf(n, "%s: unterminated payload quote", keyword)
}

// cutField takes the next whitespace-delimited token, leaving rest with
// its leading whitespace stripped.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

func parseInt(n int, keyword, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errorf(n, "%s: %q is not a non-negative integer", keyword, s)
	}
	return v, nil
}

func parseQoS(n int, keyword, s string) (byte, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 2 {
		return 0, errorf(n, "%s: qos %q must be 0, 1 or 2", keyword, s)
	}
	return byte(v), nil
}

func parseYesNo(n int, keyword, s string) (bool, error) {
	switch strings.ToUpper(s) {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	}
	return false, errorf(n, "%s: %q must be YES or NO", keyword, s)
}
