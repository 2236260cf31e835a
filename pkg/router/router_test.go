package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter_Route(t *testing.T) {
	r := New()

	var users []string
	var journeys []SystemMessage
	r.OnUser(func(text string) { users = append(users, text) })
	r.OnSystem(KindJourneyID, func(m SystemMessage) { journeys = append(journeys, m) })

	assert.Equal(t, KindUser, r.Route("hi"))
	assert.Equal(t, KindJourneyID, r.Route(FormatJourneyID("j1")))
	assert.Equal(t, KindJourneyAck, r.Route("[SYSTEM]JOURNEY_ACK"))

	assert.Equal(t, []string{"hi"}, users)
	if assert.Len(t, journeys, 1) {
		assert.Equal(t, "j1", journeys[0].Value)
	}
}

func TestRouter_UnknownIgnored(t *testing.T) {
	r := New()

	called := false
	r.OnUser(func(string) { called = true })
	r.OnSystem(KindUnknown, func(SystemMessage) { called = true })

	assert.Equal(t, KindUnknown, r.Route("[SYSTEM]SOMETHING_NEW:1"))
	assert.False(t, called)
}

func TestRouter_MultipleHandlers(t *testing.T) {
	r := New()

	count := 0
	r.OnSystem(KindSacredSpaceStart, func(SystemMessage) { count++ })
	r.OnSystem(KindSacredSpaceStart, func(SystemMessage) { count++ })

	r.Route("[SYSTEM]SACRED_SPACE_START")
	assert.Equal(t, 2, count)
}
