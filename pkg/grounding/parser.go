package grounding

import (
	"strings"

	"github.com/tidwall/gjson"
)

// closing punctuation never keeps the blank in front of an excised tag
const closers = ".,;:!?)]}"

const separators = ",;:"

var brackets = map[byte]byte{
	'(': ')',
	'[': ']',
	'{': '}',
}

// Parse scans raw model output once and returns the text with every
// grounding tag removed together with the detections in first-occurrence
// order. Labels merge only when they are byte-identical. Broken tags are
// skipped and counted, they never abort the scan.
func Parse(raw string) Result {
	p := &parser{
		input: raw,
		index: make(map[string]int),
	}

	p.run()

	return p.result()
}

type parser struct {
	input string
	pos   int

	out []byte

	detections []Detection
	index      map[string]int

	malformed int
	dropped   int
}

func (p *parser) run() {
	for p.pos < len(p.input) {
		i := strings.Index(p.input[p.pos:], "<|")

		if i < 0 {
			p.out = append(p.out, p.input[p.pos:]...)
			p.pos = len(p.input)
			break
		}

		p.out = append(p.out, p.input[p.pos:p.pos+i]...)
		p.pos += i

		rest := p.input[p.pos:]

		switch {
		case strings.HasPrefix(rest, tagRefOpen):
			p.parseRef()

		case strings.HasPrefix(rest, tagDetOpen):
			end, _ := p.scanDet(p.pos + len(tagDetOpen))

			p.pos = end
			p.excise()

		case strings.HasPrefix(rest, tagGrounding):
			p.pos += len(tagGrounding)
			p.excise()

		case strings.HasPrefix(rest, tagRefClose):
			p.pos += len(tagRefClose)
			p.excise()

		case strings.HasPrefix(rest, tagDetClose):
			p.pos += len(tagDetClose)
			p.excise()

		default:
			p.out = append(p.out, "<|"...)
			p.pos += 2
		}
	}
}

func (p *parser) parseRef() {
	start := p.pos
	labelStart := start + len(tagRefOpen)

	n := strings.Index(p.input[labelStart:], tagRefClose)

	if n < 0 || strings.Contains(p.input[labelStart:labelStart+n], "<|") {
		// unterminated label: drop the delimiter, keep the text
		p.malformed++
		p.pos = labelStart
		return
	}

	label := p.input[labelStart : labelStart+n]
	after := labelStart + n + len(tagRefClose)

	det := after + blankPrefix(p.input[after:], true)

	if !strings.HasPrefix(p.input[det:], tagDetOpen) {
		// a label without coordinates is plain text
		p.out = append(p.out, label...)
		p.pos = after
		return
	}

	end, payload := p.scanDet(det + len(tagDetOpen))

	p.pos = end
	offset := p.excise()

	if payload == nil {
		p.malformed++
		return
	}

	boxes, ok := parseBoxes(*payload)

	if !ok {
		p.malformed++
		return
	}

	valid := make([]Box, 0, len(boxes))

	for _, b := range boxes {
		if !b.valid() {
			p.dropped++
			continue
		}

		valid = append(valid, b)
	}

	if len(valid) == 0 {
		return
	}

	p.add(strings.TrimSpace(label), Occurrence{
		Span: Span{
			Start: start,
			End:   end,
		},

		Offset: offset,

		Boxes: valid,
	})
}

// scanDet finds the end of a coordinate tag whose payload starts at pos. An
// unterminated tag swallows the rest of its line and yields no payload.
func (p *parser) scanDet(pos int) (int, *string) {
	n := strings.Index(p.input[pos:], tagDetClose)

	if n < 0 || strings.Contains(p.input[pos:pos+n], "<|") {
		if eol := strings.IndexByte(p.input[pos:], '\n'); eol >= 0 {
			return pos + eol, nil
		}

		return len(p.input), nil
	}

	payload := p.input[pos : pos+n]

	return pos + n + len(tagDetClose), &payload
}

// excise repairs the whitespace around a removed span and returns the clean
// text offset of the excision point.
func (p *parser) excise() int {
	rest := p.input[p.pos:]

	if p.atLineStart() {
		if n := blankPrefix(rest, false); n > 0 {
			p.pos += n
			rest = rest[n:]
		}

		if n := newlinePrefix(rest); n > 0 {
			p.pos += n
		}

		return len(p.out)
	}

	if n := blankPrefix(rest, false); n < len(rest) && strings.IndexByte(closers, rest[n]) >= 0 {
		if p.repairPunctuation(rest[n]) {
			p.pos += n + 1
			rest = rest[n+1:]
		}
	}

	if !p.endsWithBlank() {
		return len(p.out)
	}

	if n := blankPrefix(rest, false); n > 0 {
		p.pos += n
		rest = rest[n:]
	}

	if rest == "" || rest[0] == '\n' || rest[0] == '\r' || strings.IndexByte(closers, rest[0]) >= 0 {
		p.trimBlank()
	}

	return len(p.out)
}

// repairPunctuation resolves a closer that directly follows an excision. An
// emptied bracket pair goes entirely, of two marks around the gap only one
// stays. It reports whether the closer itself is dropped.
func (p *parser) repairPunctuation(next byte) bool {
	i := len(p.out) - 1

	for i >= 0 && (p.out[i] == ' ' || p.out[i] == '\t') {
		i--
	}

	if i < 0 || p.out[i] == '\n' {
		return false
	}

	prev := p.out[i]

	if brackets[prev] == next {
		p.truncate(i)
		p.trimBlank()

		return true
	}

	if strings.IndexByte(separators, prev) < 0 {
		return false
	}

	if strings.IndexByte(separators, next) >= 0 {
		return true
	}

	p.truncate(i)

	return false
}

// truncate cuts the clean text to n bytes. Offsets recorded beyond the cut
// move back to it.
func (p *parser) truncate(n int) {
	p.out = p.out[:n]

	for i := range p.detections {
		for j := range p.detections[i].Occurrences {
			o := &p.detections[i].Occurrences[j]
			o.Offset = min(o.Offset, n)
		}
	}
}

func (p *parser) atLineStart() bool {
	return len(p.out) == 0 || p.out[len(p.out)-1] == '\n'
}

func (p *parser) endsWithBlank() bool {
	if len(p.out) == 0 {
		return false
	}

	c := p.out[len(p.out)-1]

	return c == ' ' || c == '\t'
}

func (p *parser) trimBlank() {
	n := len(p.out)

	for n > 0 && (p.out[n-1] == ' ' || p.out[n-1] == '\t') {
		n--
	}

	if n < len(p.out) {
		p.truncate(n)
	}
}

func (p *parser) add(label string, o Occurrence) {
	if i, ok := p.index[label]; ok {
		p.detections[i].Occurrences = append(p.detections[i].Occurrences, o)
		return
	}

	p.index[label] = len(p.detections)

	p.detections = append(p.detections, Detection{
		Label: label,

		Occurrences: []Occurrence{o},
	})
}

func (p *parser) result() Result {
	text := string(p.out)

	trimmed := strings.TrimLeft(text, " \t\r\n")
	lead := len(text) - len(trimmed)

	trimmed = strings.TrimRight(trimmed, " \t\r\n")

	for i := range p.detections {
		for j := range p.detections[i].Occurrences {
			o := &p.detections[i].Occurrences[j]
			o.Offset = max(0, min(o.Offset-lead, len(trimmed)))
		}
	}

	return Result{
		Text: trimmed,

		Detections: p.detections,

		Malformed: p.malformed,
		Dropped:   p.dropped,
	}
}

func parseBoxes(payload string) ([]Box, bool) {
	payload = strings.TrimSpace(payload)

	if !gjson.Valid(payload) {
		return nil, false
	}

	value := gjson.Parse(payload)

	if !value.IsArray() {
		return nil, false
	}

	items := value.Array()

	if len(items) == 0 {
		return nil, false
	}

	// a flat list is a single box
	if items[0].Type == gjson.Number {
		box, ok := parseBox(items)

		if !ok {
			return nil, false
		}

		return []Box{box}, true
	}

	boxes := make([]Box, 0, len(items))

	for _, item := range items {
		if !item.IsArray() {
			return nil, false
		}

		box, ok := parseBox(item.Array())

		if !ok {
			return nil, false
		}

		boxes = append(boxes, box)
	}

	return boxes, true
}

func parseBox(values []gjson.Result) (Box, bool) {
	var box Box

	if len(values) != 4 {
		return box, false
	}

	for i, v := range values {
		if v.Type != gjson.Number {
			return box, false
		}

		box[i] = v.Float()
	}

	return box, true
}

func blankPrefix(s string, newlines bool) int {
	n := 0

	for n < len(s) {
		c := s[n]

		if c == ' ' || c == '\t' || (newlines && (c == '\n' || c == '\r')) {
			n++
			continue
		}

		break
	}

	return n
}

func newlinePrefix(s string) int {
	if strings.HasPrefix(s, "\r\n") {
		return 2
	}

	if strings.HasPrefix(s, "\n") {
		return 1
	}

	return 0
}
