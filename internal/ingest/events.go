package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// maxLineBytes bounds a single log line. User agents and locations are short;
// 1 MiB is far beyond anything the event logs produce.
const maxLineBytes = 1 << 20

// ReadLogFile parses one listening-session log file (newline-delimited JSON)
// and returns the qualifying play events in file order.
//
// Rows whose page is not NextSong are dropped before any further processing;
// a file where every row is filtered out is valid and yields an empty slice.
// Blank lines are skipped. A line that is not a valid JSON object, or a
// qualifying row that fails validation, fails the whole file with
// ErrMalformedRecord.
func ReadLogFile(path string) ([]PlayEvent, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from directory scan, not user input
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	var events []PlayEvent

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event PlayEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedRecord, path, lineNo, err)
		}

		// Filter first: non-playback rows are discarded whole, whatever else
		// they carry (anonymous userId, missing level, ...).
		if event.Page != PageNextSong {
			continue
		}

		if err := event.Validate(); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file %s: %w", path, err)
	}

	return events, nil
}
