package export

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/keepsake-ai/keepsake/core"
)

const (
	// maxLineBytes bounds a single export line. Some clients export
	// pasted documents as one message line.
	maxLineBytes = 1 << 20

	// directionMarks are the invisible Unicode marks WhatsApp prefixes
	// header lines with. They are trimmed before header matching;
	// message content is never rewritten.
	directionMarks = "‎‏" // U+200E U+200F
)

// Header conventions. The timestamp half is matched loosely here and
// validated by time.Parse afterwards; the sender/content split happens
// on the first ": " of the remainder.
var (
	// iOS style: [01/01/2024, 10:00:00] Alice: Hello
	iosHeader = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),? (\d{1,2}:\d{2}(?::\d{2})?(?:[ \x{00a0}\x{202f}]?[AaPp][Mm])?)\] (.*)$`)

	// Android style: 01/01/2024, 10:00 - Alice: Hello
	androidHeader = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),? (\d{1,2}:\d{2}(?::\d{2})?(?:[ \x{00a0}\x{202f}]?[AaPp][Mm])?) - (.*)$`)
)

// Timestamp layouts, day-first preferred (the common WhatsApp locale),
// month-first as fallback.
var dayFirstLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/06 15:04:05",
	"2/1/06 15:04",
	"2/1/2006 3:04:05 PM",
	"2/1/2006 3:04 PM",
	"2/1/06 3:04:05 PM",
	"2/1/06 3:04 PM",
}

var monthFirstLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04:05",
	"1/2/06 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/06 3:04:05 PM",
	"1/2/06 3:04 PM",
}

// clockSpaces normalizes the no-break space variants WhatsApp puts
// before AM/PM into a plain space for time.Parse.
var clockSpaces = strings.NewReplacer(" ", " ", " ", " ") // NBSP, NNBSP

// Parser turns raw chat export text into raw messages.
// The zero value is not usable; construct with NewParser.
type Parser struct {
	source core.Source
}

// NewParser creates a parser for WhatsApp export files.
func NewParser() *Parser {
	return &Parser{source: core.SourceWhatsApp}
}

// NewParserForSource creates a parser emitting messages tagged with the
// given source platform. The header conventions parsed are the same.
func NewParserForSource(source core.Source) *Parser {
	return &Parser{source: source}
}

// Scan returns a lazy scanner over the messages in r.
// Messages are emitted in document order with recipient fields unset;
// use Parse, or AssignRecipients after draining the scanner, to classify
// the conversation and fill them.
func (p *Parser) Scan(r io.Reader, conversationID string) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Scanner{
		lines:          lines,
		conversationID: conversationID,
		source:         p.source,
		senders:        make(map[string]struct{}),
	}
}

// Parse reads the whole export, classifies the conversation as 1:1 or
// group, and returns the messages in document order with recipient
// fields populated. A structurally empty export yields an empty slice
// and no error.
func (p *Parser) Parse(r io.Reader, conversationID string) ([]*core.RawMessage, error) {
	sc := p.Scan(r, conversationID)
	var msgs []*core.RawMessage
	for sc.Scan() {
		msgs = append(msgs, sc.Message())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	AssignRecipients(msgs)
	return msgs, nil
}

// Scanner is a lazy iterator over the messages of one export.
// It follows the bufio.Scanner protocol: Scan advances to the next
// message, Message returns it, Err reports the first read error.
type Scanner struct {
	lines          *bufio.Scanner
	conversationID string
	source         core.Source

	pending     *core.RawMessage // message still accumulating continuation lines
	msg         *core.RawMessage // last emitted message
	senders     map[string]struct{}
	sendersOrd  []string
	droppedPrev bool // previous header line was a notice; its continuations go with it
	finished    bool
	err         error
}

// Scan advances to the next complete message.
// It returns false at end of input or on a read error.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.finished {
		return false
	}

	for s.lines.Scan() {
		line := s.lines.Text()

		header, rest, ok := matchHeader(line)
		if !ok {
			// No header: continuation of the open message, if any.
			// Continuations of dropped notices are dropped with them.
			if s.pending != nil && !s.droppedPrev {
				s.pending.Content += "\n" + line
			}
			continue
		}

		next := s.buildMessage(header, rest)
		if next == nil {
			// Header-shaped but not a message: system notice or an
			// unparsable timestamp. Emit what we had and drop the line.
			s.droppedPrev = true
			if prev := s.flushPending(); prev != nil {
				s.msg = prev
				return true
			}
			continue
		}

		s.droppedPrev = false
		prev := s.pending
		s.pending = next
		s.noteSender(next.Sender)
		if prev != nil {
			s.msg = prev
			return true
		}
	}

	if err := s.lines.Err(); err != nil {
		s.err = err
		return false
	}

	s.finished = true
	if prev := s.flushPending(); prev != nil {
		s.msg = prev
		return true
	}
	return false
}

// Message returns the message produced by the last successful Scan.
func (s *Scanner) Message() *core.RawMessage {
	return s.msg
}

// Err returns the first error encountered while reading the input.
// Malformed lines are not errors; they are skipped.
func (s *Scanner) Err() error {
	return s.err
}

// Senders returns the distinct senders seen so far, in order of first
// appearance.
func (s *Scanner) Senders() []string {
	out := make([]string, len(s.sendersOrd))
	copy(out, s.sendersOrd)
	return out
}

func (s *Scanner) flushPending() *core.RawMessage {
	prev := s.pending
	s.pending = nil
	return prev
}

func (s *Scanner) noteSender(sender string) {
	if _, seen := s.senders[sender]; seen {
		return
	}
	s.senders[sender] = struct{}{}
	s.sendersOrd = append(s.sendersOrd, sender)
}

// buildMessage turns a matched header into a raw message, or nil when
// the line is a system notice ("Messages to this chat and calls are now
// secured...") or carries an unparsable timestamp.
func (s *Scanner) buildMessage(header headerParts, rest string) *core.RawMessage {
	sender, content, found := strings.Cut(rest, ": ")
	if !found || sender == "" {
		return nil
	}

	ts, err := parseTimestamp(header.date, header.clock)
	if err != nil {
		return nil
	}

	return &core.RawMessage{
		ConversationID: s.conversationID,
		Sender:         strings.Trim(sender, directionMarks+" "),
		Timestamp:      ts,
		Content:        content,
		Source:         s.source,
	}
}

type headerParts struct {
	date  string
	clock string
}

// matchHeader tries both header conventions against the line, after
// trimming the invisible marks some clients prefix headers with.
func matchHeader(line string) (headerParts, string, bool) {
	probe := strings.TrimLeft(line, directionMarks)

	if m := iosHeader.FindStringSubmatch(probe); m != nil {
		return headerParts{date: m[1], clock: m[2]}, m[3], true
	}
	if m := androidHeader.FindStringSubmatch(probe); m != nil {
		return headerParts{date: m[1], clock: m[2]}, m[3], true
	}
	return headerParts{}, "", false
}

func parseTimestamp(date, clock string) (time.Time, error) {
	clock = strings.ToUpper(clockSpaces.Replace(strings.TrimSpace(clock)))
	// Normalize "10:00AM" to "10:00 AM" for the layouts below.
	if n := len(clock); n > 2 && (strings.HasSuffix(clock, "AM") || strings.HasSuffix(clock, "PM")) && clock[n-3] != ' ' {
		clock = clock[:n-2] + " " + clock[n-2:]
	}
	value := date + " " + clock

	var firstErr error
	for _, layout := range dayFirstLayouts {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, layout := range monthFirstLayouts {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, firstErr
}

// AssignRecipients classifies the conversation and fills the recipient
// fields in place. With at most two distinct senders the conversation is
// 1:1 and each message's Recipient is the other party; otherwise it is a
// group and every message carries the full participant list.
func AssignRecipients(msgs []*core.RawMessage) {
	if len(msgs) == 0 {
		return
	}

	seen := make(map[string]struct{})
	var participants []string
	for _, msg := range msgs {
		if _, ok := seen[msg.Sender]; !ok {
			seen[msg.Sender] = struct{}{}
			participants = append(participants, msg.Sender)
		}
	}

	if len(participants) <= 2 {
		for _, msg := range msgs {
			for _, p := range participants {
				if p != msg.Sender {
					msg.Recipient = p
					break
				}
			}
		}
		return
	}

	for _, msg := range msgs {
		msg.Recipients = make([]string, len(participants))
		copy(msg.Recipients, participants)
	}
}
