package telephony

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// Response is a minimal Twilio Markup Language builder.
// Only the verbs the voice flow emits are modelled.
type Response struct {
	verbs []any
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name `xml:"Gather"`
	Input     string   `xml:"input,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	Verbs     []any    `xml:",any"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	Digits  string   `xml:"digits,attr,omitempty"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Gather collects keypad or speech input and posts it to Action.
// Prompt is spoken while input is collected.
type Gather struct {
	Input     string
	Timeout   int
	NumDigits int
	Action    string
	Method    string
	Voice     string
	Prompt    string
}

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(voice, text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Voice: voice, Text: text})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	v := twimlGather{
		Input:     g.Input,
		Timeout:   g.Timeout,
		NumDigits: g.NumDigits,
		Action:    g.Action,
		Method:    g.Method,
	}
	if g.Prompt != "" {
		v.Verbs = append(v.Verbs, twimlSay{Voice: g.Voice, Text: g.Prompt})
	}
	r.verbs = append(r.verbs, v)
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, twimlPause{Length: seconds})
	return r
}

// PlayDigits sends DTMF tones on the call leg.
func (r *Response) PlayDigits(digits string) *Response {
	r.verbs = append(r.verbs, twimlPlay{Digits: digits})
	return r
}

func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, twimlRedirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

// Render encodes the response as an XML document.
func (r *Response) Render() (string, error) {
	doc := twimlResponse{Verbs: r.verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// hangupDocument is served when a response cannot be encoded.
const hangupDocument = xml.Header + "<Response>\n  <Hangup></Hangup>\n</Response>"

// String renders the response, falling back to a bare hangup so a call leg
// is never left without instructions.
func (r *Response) String() string {
	s, err := r.Render()
	if err != nil {
		return hangupDocument
	}
	return s
}

// StepURL builds the voice-flow callback for a call at the given step.
func StepURL(publicURL, callID string, step int, digit string) string {
	u := CallbackURL(publicURL, "voice", callID) + "?step=" + strconv.Itoa(step)
	if digit != "" {
		u += "&digit=" + queryEscape(digit)
	}
	return u
}
