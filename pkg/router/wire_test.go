package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Message
	}{
		{
			name:  "user",
			input: "hello there",
			want:  Message{Kind: KindUser, Text: "hello there"},
		},
		{
			name:  "user with prefix inside",
			input: "see [SYSTEM]JOURNEY_ACK",
			want:  Message{Kind: KindUser, Text: "see [SYSTEM]JOURNEY_ACK"},
		},
		{
			name:  "empty user",
			input: "",
			want:  Message{Kind: KindUser},
		},
		{
			name:  "journey id",
			input: "[SYSTEM]JOURNEY_ID:j-42",
			want: Message{Kind: KindJourneyID, System: &SystemMessage{
				Kind: KindJourneyID, Name: "JOURNEY_ID", Value: "j-42", Raw: "[SYSTEM]JOURNEY_ID:j-42",
			}},
		},
		{
			name:  "bare sub-type",
			input: "[SYSTEM]CONVERGENCE_ACCEPTED",
			want: Message{Kind: KindConvergenceAccepted, System: &SystemMessage{
				Kind: KindConvergenceAccepted, Name: "CONVERGENCE_ACCEPTED", Raw: "[SYSTEM]CONVERGENCE_ACCEPTED",
			}},
		},
		{
			name:  "prompt text keeps colons",
			input: "[SYSTEM]PROMPT:what is: this",
			want: Message{Kind: KindPrompt, System: &SystemMessage{
				Kind: KindPrompt, Name: "PROMPT", Value: "what is: this", Raw: "[SYSTEM]PROMPT:what is: this",
			}},
		},
		{
			name:  "meetup description",
			input: "[SYSTEM]MEETUP_DESC:LOCATION:north gate|APPEARANCE:red scarf|SESSION:s1",
			want: Message{Kind: KindMeetupDesc, System: &SystemMessage{
				Kind: KindMeetupDesc,
				Name: "MEETUP_DESC",
				Fields: map[string]string{
					FieldLocation:   "north gate",
					FieldAppearance: "red scarf",
					FieldSession:    "s1",
				},
				Raw: "[SYSTEM]MEETUP_DESC:LOCATION:north gate|APPEARANCE:red scarf|SESSION:s1",
			}},
		},
		{
			name:  "artifact with pipes",
			input: "[SYSTEM]ARTIFACT_CREATED:a|b|c|SESSION:s9",
			want: Message{Kind: KindArtifactCreated, System: &SystemMessage{
				Kind:   KindArtifactCreated,
				Name:   "ARTIFACT_CREATED",
				Value:  "a|b|c",
				Fields: map[string]string{FieldSession: "s9"},
				Raw:    "[SYSTEM]ARTIFACT_CREATED:a|b|c|SESSION:s9",
			}},
		},
		{
			name:  "resonance scores",
			input: "[SYSTEM]RESONANCE_SCORES:presence=4,courage=2,mirror=5",
			want: Message{Kind: KindResonanceScores, System: &SystemMessage{
				Kind: KindResonanceScores,
				Name: "RESONANCE_SCORES",
				Fields: map[string]string{
					FieldPresence: "4",
					FieldCourage:  "2",
					FieldMirror:   "5",
				},
				Raw: "[SYSTEM]RESONANCE_SCORES:presence=4,courage=2,mirror=5",
			}},
		},
		{
			name:  "unknown sub-type",
			input: "[SYSTEM]FUTURE_THING:x",
			want: Message{Kind: KindUnknown, System: &SystemMessage{
				Kind: KindUnknown, Name: "FUTURE_THING", Value: "x", Raw: "[SYSTEM]FUTURE_THING:x",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Parse(tt.input)); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestFormatters_ParseBack(t *testing.T) {
	msg := Parse(FormatMeetupDesc("cafe", "blue hat", "s2"))
	require.Equal(t, KindMeetupDesc, msg.Kind)
	loc, _ := msg.System.Field(FieldLocation)
	assert.Equal(t, "cafe", loc)

	msg = Parse(FormatArtifactCreated("poem | verse", "s3"))
	require.Equal(t, KindArtifactCreated, msg.Kind)
	assert.Equal(t, "poem | verse", msg.System.Value)
	session, _ := msg.System.Field(FieldSession)
	assert.Equal(t, "s3", session)

	msg = Parse(FormatActChange(3))
	act, err := msg.System.Act()
	require.NoError(t, err)
	assert.Equal(t, 3, act)

	want := Resonance{Presence: 1, Courage: 2, Mirror: 3}
	msg = Parse(FormatResonanceScores(want))
	got, err := msg.System.Resonance()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, "[SYSTEM]JOURNEY_ID:abc", FormatJourneyID("abc"))
	assert.Equal(t, "[SYSTEM]JOURNEY_ACK", Format(KindJourneyAck, ""))
}

func TestResonance_Errors(t *testing.T) {
	_, err := Parse("[SYSTEM]RESONANCE_SCORES:presence=1,courage=2").System.Resonance()
	assert.ErrorIs(t, err, ErrFieldMissing)

	_, err = Parse("[SYSTEM]RESONANCE_SCORES:presence=x,courage=2,mirror=3").System.Resonance()
	assert.Error(t, err)

	_, err = Parse("[SYSTEM]JOURNEY_ACK").System.Resonance()
	assert.Error(t, err)
}

func TestAct_Invalid(t *testing.T) {
	_, err := Parse("[SYSTEM]ACT_CHANGE:two").System.Act()
	assert.Error(t, err)
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown(KindFirebaseUID))
	assert.False(t, IsKnown(KindUser))
	assert.False(t, IsKnown(Kind("NOPE")))
}
