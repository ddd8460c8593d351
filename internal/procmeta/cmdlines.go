package procmeta

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ParseSavedCmdlines loads "<pid> <comm>" lines as written by the kernel in
// tracefs saved_cmdlines. Malformed lines are skipped. It returns the number
// of entries loaded.
func (m *Manager) ParseSavedCmdlines(r io.Reader) (int, error) {
	n := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		v := strings.SplitN(scanner.Text(), " ", 2)
		if len(v) != 2 {
			continue
		}
		pid, err := strconv.Atoi(v[0])
		if err != nil || v[1] == "" {
			continue
		}
		m.SetComm(pid, v[1], SourceSavedCmdlines)
		n++
	}
	return n, scanner.Err()
}
