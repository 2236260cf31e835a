// Package router classifies decrypted session plaintext into user chat and
// system control messages and dispatches each to its consumer.
//
// A system message is the literal prefix "[SYSTEM]" followed by a sub-type
// name and an optional payload:
//
//	[SYSTEM]JOURNEY_ID:<id>
//	[SYSTEM]ACT_CHANGE:<n>
//	[SYSTEM]MEETUP_DESC:LOCATION:<..>|APPEARANCE:<..>|SESSION:<id>
//	[SYSTEM]ARTIFACT_CREATED:<text>|SESSION:<id>
//	[SYSTEM]RESONANCE_SCORES:presence=<n>,courage=<n>,mirror=<n>
//
// Everything without the prefix is a user message.
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SystemPrefix marks a control message.
const SystemPrefix = "[SYSTEM]"

// Kind identifies a classified message.
type Kind string

const (
	KindUser    Kind = "USER"
	KindUnknown Kind = "UNKNOWN"

	KindJourneyID      Kind = "JOURNEY_ID"
	KindRequestJourney Kind = "REQUEST_JOURNEY"
	KindJourneyAck     Kind = "JOURNEY_ACK"
	KindActChange      Kind = "ACT_CHANGE"

	// Legacy prompt exchange.
	KindPromptID Kind = "PROMPT_ID"
	KindPrompt   Kind = "PROMPT"

	KindConvergenceRequest  Kind = "CONVERGENCE_REQUEST"
	KindConvergenceAccepted Kind = "CONVERGENCE_ACCEPTED"
	KindConvergenceDeclined Kind = "CONVERGENCE_DECLINED"

	KindHandshakeInitiate Kind = "HANDSHAKE_INITIATE"
	KindHandshakeConfirm  Kind = "HANDSHAKE_CONFIRM"

	KindSacredSpaceRequest Kind = "SACRED_SPACE_REQUEST"
	KindSacredSpaceStart   Kind = "SACRED_SPACE_START"

	KindMeetupDesc      Kind = "MEETUP_DESC"
	KindArtifactCreated Kind = "ARTIFACT_CREATED"
	KindResonanceScores Kind = "RESONANCE_SCORES"
	KindFirebaseUID     Kind = "FIREBASE_UID"
)

// Field names filled for structured sub-types.
const (
	FieldLocation   = "location"
	FieldAppearance = "appearance"
	FieldSession    = "session"
	FieldPresence   = "presence"
	FieldCourage    = "courage"
	FieldMirror     = "mirror"
)

const sessionSuffix = "|SESSION:"

// known lists every sub-type the router interprets.
var known = map[Kind]bool{
	KindJourneyID:           true,
	KindRequestJourney:      true,
	KindJourneyAck:          true,
	KindActChange:           true,
	KindPromptID:            true,
	KindPrompt:              true,
	KindConvergenceRequest:  true,
	KindConvergenceAccepted: true,
	KindConvergenceDeclined: true,
	KindHandshakeInitiate:   true,
	KindHandshakeConfirm:    true,
	KindSacredSpaceRequest:  true,
	KindSacredSpaceStart:    true,
	KindMeetupDesc:          true,
	KindArtifactCreated:     true,
	KindResonanceScores:     true,
	KindFirebaseUID:         true,
}

// IsKnown reports whether k is an interpreted system sub-type.
func IsKnown(k Kind) bool {
	return known[k]
}

// ErrFieldMissing is returned by the typed accessors when a field is absent.
var ErrFieldMissing = errors.New("field missing")

// SystemMessage is a parsed control message.
type SystemMessage struct {
	// Kind is KindUnknown for sub-types the router does not interpret.
	Kind Kind

	// Name is the sub-type name as it appeared on the wire.
	Name string

	// Value is the payload after the first colon. For ARTIFACT_CREATED it
	// is the artifact text without the session suffix.
	Value string

	// Fields holds the structured payload of MEETUP_DESC, ARTIFACT_CREATED
	// and RESONANCE_SCORES.
	Fields map[string]string

	// Raw is the full plaintext including the prefix.
	Raw string
}

// Message is a classified plaintext.
type Message struct {
	Kind Kind

	// Text is the user message. Empty for system messages.
	Text string

	// System is set for every non-user message.
	System *SystemMessage
}

// Parse classifies plaintext. It never fails: anything it cannot interpret
// parses to KindUnknown.
func Parse(plaintext string) Message {
	body, ok := strings.CutPrefix(plaintext, SystemPrefix)
	if !ok {
		return Message{Kind: KindUser, Text: plaintext}
	}

	name, payload, _ := strings.Cut(body, ":")
	sys := &SystemMessage{Kind: Kind(name), Name: name, Raw: plaintext}
	if !known[sys.Kind] {
		sys.Kind = KindUnknown
		sys.Value = payload
		return Message{Kind: KindUnknown, System: sys}
	}

	switch sys.Kind {
	case KindMeetupDesc:
		sys.Fields = parsePairs(payload, "|", ":")
	case KindArtifactCreated:
		if i := strings.LastIndex(payload, sessionSuffix); i >= 0 {
			sys.Value = payload[:i]
			sys.Fields = map[string]string{FieldSession: payload[i+len(sessionSuffix):]}
		} else {
			sys.Value = payload
		}
	case KindResonanceScores:
		sys.Fields = parsePairs(payload, ",", "=")
	default:
		sys.Value = payload
	}
	return Message{Kind: sys.Kind, System: sys}
}

// parsePairs splits "K<kv>v<sep>K<kv>v" into lower-cased keys. Malformed
// segments are skipped.
func parsePairs(payload, sep, kv string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(payload, sep) {
		k, v, ok := strings.Cut(part, kv)
		if !ok || k == "" {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return fields
}

// Field returns a structured field.
func (m SystemMessage) Field(name string) (string, bool) {
	v, ok := m.Fields[name]
	return v, ok
}

// Act returns the act number of an ACT_CHANGE message.
func (m SystemMessage) Act() (int, error) {
	if m.Kind != KindActChange {
		return 0, fmt.Errorf("act of %s message", m.Kind)
	}
	return strconv.Atoi(strings.TrimSpace(m.Value))
}

// Resonance holds the three resonance scores.
type Resonance struct {
	Presence int
	Courage  int
	Mirror   int
}

// Resonance returns the scores of a RESONANCE_SCORES message.
func (m SystemMessage) Resonance() (Resonance, error) {
	if m.Kind != KindResonanceScores {
		return Resonance{}, fmt.Errorf("resonance of %s message", m.Kind)
	}
	var r Resonance
	for name, dst := range map[string]*int{
		FieldPresence: &r.Presence,
		FieldCourage:  &r.Courage,
		FieldMirror:   &r.Mirror,
	} {
		raw, ok := m.Fields[name]
		if !ok {
			return Resonance{}, fmt.Errorf("%w: %s", ErrFieldMissing, name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Resonance{}, fmt.Errorf("invalid %s score: %w", name, err)
		}
		*dst = n
	}
	return r, nil
}

// Format builds a system message. An empty value omits the colon.
func Format(kind Kind, value string) string {
	if value == "" {
		return SystemPrefix + string(kind)
	}
	return SystemPrefix + string(kind) + ":" + value
}

// FormatJourneyID builds JOURNEY_ID.
func FormatJourneyID(id string) string {
	return Format(KindJourneyID, id)
}

// FormatActChange builds ACT_CHANGE.
func FormatActChange(act int) string {
	return Format(KindActChange, strconv.Itoa(act))
}

// FormatMeetupDesc builds MEETUP_DESC.
func FormatMeetupDesc(location, appearance, session string) string {
	return Format(KindMeetupDesc,
		"LOCATION:"+location+"|APPEARANCE:"+appearance+"|SESSION:"+session)
}

// FormatArtifactCreated builds ARTIFACT_CREATED. The text may contain '|'.
func FormatArtifactCreated(text, session string) string {
	return Format(KindArtifactCreated, text+sessionSuffix+session)
}

// FormatResonanceScores builds RESONANCE_SCORES.
func FormatResonanceScores(r Resonance) string {
	return Format(KindResonanceScores, fmt.Sprintf("presence=%d,courage=%d,mirror=%d",
		r.Presence, r.Courage, r.Mirror))
}
