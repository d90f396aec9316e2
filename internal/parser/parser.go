// Package parser decodes the Windows Event XML envelope emitted by
// Get-WinEvent into normalized model.LogEntry values.
//
// The wire format is a sequence of complete Event XML documents separated
// by a literal sentinel, matching the PowerShell snippet the host
// collector runs (see internal/collector). Parsing never fails the whole
// batch: a malformed fragment is skipped and counted.
package parser

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/headlesssentinel/sentinel/internal/model"
)

// Separator is the literal token the PowerShell query writes between
// consecutive event XML documents.
const Separator = "---EVENT_SEPARATOR---"

const minFragmentLen = 50

// xmlEvent mirrors the subset of the Windows Event Schema
// (http://schemas.microsoft.com/win/2004/08/events/event) this parser
// cares about.
type xmlEvent struct {
	XMLName xml.Name `xml:"Event"`
	System  struct {
		Provider struct {
			Name string `xml:"Name,attr"`
		} `xml:"Provider"`
		EventID     string `xml:"EventID"`
		Level       string `xml:"Level"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
		Computer string `xml:"Computer"`
	} `xml:"System"`
	EventData struct {
		Data []struct {
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"EventData"`
}

// Result is the outcome of parsing one payload: the entries successfully
// decoded, plus a count of fragments that failed to parse. Fragment
// failures are counted, never fatal.
type Result struct {
	Entries    []model.LogEntry
	ParseFails int
}

// Parse decodes a raw payload containing zero or more sentinel-separated
// Windows Event XML documents. It never returns an error: malformed
// fragments are skipped and tallied in Result.ParseFails.
func Parse(payload []byte) Result {
	var res Result

	clean := Sanitize(string(payload))
	for _, fragment := range strings.Split(clean, Separator) {
		fragment = strings.TrimSpace(fragment)
		if len(fragment) < minFragmentLen {
			continue
		}

		entry, err := parseFragment(fragment)
		if err != nil {
			res.ParseFails++
			continue
		}
		res.Entries = append(res.Entries, entry)
	}

	return res
}

func parseFragment(fragment string) (model.LogEntry, error) {
	var evt xmlEvent
	if err := xml.Unmarshal([]byte(fragment), &evt); err != nil {
		return model.LogEntry{}, fmt.Errorf("parser: decode fragment: %w", err)
	}

	if evt.System.EventID == "" || evt.System.Level == "" || evt.System.TimeCreated.SystemTime == "" {
		return model.LogEntry{}, fmt.Errorf("parser: missing required System child")
	}

	eventID, err := strconv.ParseUint(evt.System.EventID, 10, 32)
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("parser: bad EventID %q: %w", evt.System.EventID, err)
	}

	ts, err := parseSystemTime(evt.System.TimeCreated.SystemTime)
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("parser: bad TimeCreated: %w", err)
	}

	levelNum, _ := strconv.Atoi(evt.System.Level)

	source := evt.System.Provider.Name
	if source == "" {
		source = "Unknown"
	}

	message := buildMessage(evt)

	return model.LogEntry{
		Timestamp: ts,
		EventID:   uint32(eventID),
		Level:     model.LevelFromWindows(levelNum),
		Source:    source,
		Message:   truncateRunes(message, model.MaxMessageRunes),
		RawXML:    truncateBytes(fragment, model.MaxRawXMLBytes),
	}, nil
}

func buildMessage(evt xmlEvent) string {
	if len(evt.EventData.Data) == 0 {
		return "No message"
	}
	parts := make([]string, 0, len(evt.EventData.Data))
	for _, d := range evt.EventData.Data {
		if d.Value != "" {
			parts = append(parts, d.Value)
		}
	}
	if len(parts) == 0 {
		return "No message"
	}
	return strings.Join(parts, " | ")
}

// parseSystemTime parses the @SystemTime attribute of TimeCreated, which
// must carry an explicit zone (a trailing Z or numeric offset), and
// converts it to UTC.
func parseSystemTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
