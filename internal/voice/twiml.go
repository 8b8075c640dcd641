// TwiML rendering for the call-control surface. The telephony provider
// fetches these documents at connect time and after every speech gather.
package voice

import (
	"encoding/xml"
	"log"
)

const sayLanguage = "es-MX"

type Response struct {
	XMLName xml.Name      `xml:"Response"`
	Verbs   []interface{} `xml:",any"`
}

type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type Play struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type Gather struct {
	XMLName             xml.Name      `xml:"Gather"`
	Input               string        `xml:"input,attr"`
	Timeout             int           `xml:"timeout,attr"`
	Language            string        `xml:"language,attr,omitempty"`
	Action              string        `xml:"action,attr"`
	Method              string        `xml:"method,attr"`
	ActionOnEmptyResult bool          `xml:"actionOnEmptyResult,attr"`
	Verbs               []interface{} `xml:",any"`
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func say(text string) Say {
	return Say{Language: sayLanguage, Text: text}
}

// speechGather wraps the prompt verb in a speech capture bounded by the
// listen timeout. Empty results still POST back to the action so the
// no-input policy lives in one handler.
func speechGather(action string, prompt interface{}) Gather {
	return Gather{
		Input:               "speech",
		Timeout:             gatherTimeoutSeconds,
		Language:            sayLanguage,
		Action:              action,
		Method:              "POST",
		ActionOnEmptyResult: true,
		Verbs:               []interface{}{prompt},
	}
}

// render marshals verbs into a TwiML document. It must always produce
// valid markup; a malformed response leaves a live call undefined.
func render(verbs ...interface{}) string {
	doc := Response{Verbs: verbs}
	out, err := xml.Marshal(doc)
	if err != nil {
		log.Printf("Error rendering TwiML: %v", err)
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return xml.Header + string(out)
}
