package persistence

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Command is one logged mutation. The encoding is the RESP array subset:
// binary safe, self-delimiting, easy to eyeball in a hex dump.
type Command struct {
	// Name is the upper-case command name, e.g. "PUT", "DEL".
	Name string
	Args [][]byte
}

// FormatCommand renders a command name and its arguments as a RESP array.
func FormatCommand(name string, args ...[]byte) string {
	var b strings.Builder

	b.WriteString("*")
	b.WriteString(strconv.Itoa(1 + len(args)))
	b.WriteString("\r\n")
	writeBulk(&b, []byte(name))
	for _, arg := range args {
		writeBulk(&b, arg)
	}
	return b.String()
}

func writeBulk(b *strings.Builder, arg []byte) {
	if arg == nil {
		b.WriteString("$-1\r\n")
		return
	}
	b.WriteString("$")
	b.WriteString(strconv.Itoa(len(arg)))
	b.WriteString("\r\n")
	b.Write(arg)
	b.WriteString("\r\n")
}

// ParseCommand reads the next RESP array from reader. It returns io.EOF when
// the reader is exhausted exactly at a command boundary.
func ParseCommand(reader *bufio.Reader) (*Command, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}

	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '*' {
		return nil, fmt.Errorf("invalid command format, expected '*'")
	}
	numArgs, err := strconv.Atoi(line[1:])
	if err != nil || numArgs <= 0 {
		return nil, fmt.Errorf("invalid number of arguments %q", line[1:])
	}

	args := make([][]byte, numArgs)
	for i := 0; i < numArgs; i++ {
		line, err = reader.ReadString('\n')
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		line = strings.TrimSpace(line)
		if len(line) < 2 || line[0] != '$' {
			return nil, fmt.Errorf("invalid argument format, expected '$'")
		}
		n, err := strconv.Atoi(line[1:])
		if err != nil || n < -1 {
			return nil, fmt.Errorf("invalid argument length %q", line[1:])
		}
		if n == -1 {
			continue
		}

		data := make([]byte, n+2)
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		args[i] = data[:n]
	}

	return &Command{
		Name: strings.ToUpper(string(args[0])),
		Args: args[1:],
	}, nil
}
