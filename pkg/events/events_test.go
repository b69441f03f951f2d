package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"booking.created", "booking.created", true},
		{"booking.*", "booking.created", true},
		{"booking.*", "booking.status_changed", true},
		{"booking.*", "testimonial.approved", false},
		{"booking.>", "booking.a.b", true},
		{">", "anything.at.all", true},
		{"booking", "booking.created", false},
		{"booking.created.x", "booking.created", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, subjectMatches(tt.pattern, tt.subject))
		})
	}
}

func TestLocalBus_PublishSubscribe(t *testing.T) {
	bus := NewLocalBus()
	var got []BookingCreatedEvent

	require.NoError(t, bus.Subscribe(BookingCreated, func(msg *Message) {
		var evt BookingCreatedEvent
		require.NoError(t, msg.Decode(&evt))
		got = append(got, evt)
	}))

	require.NoError(t, bus.Publish(context.Background(), BookingCreated, BookingCreatedEvent{BookingID: "b1", ItemType: "Course"}))
	require.NoError(t, bus.Publish(context.Background(), TestimonialApproved, TestimonialApprovedEvent{TestimonialID: "t1"}))

	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].BookingID)
}

func TestLocalBus_QueueGroupDeliversOnce(t *testing.T) {
	bus := NewLocalBus()
	var a, b int
	require.NoError(t, bus.QueueSubscribe("booking.*", "notify", func(*Message) { a++ }))
	require.NoError(t, bus.QueueSubscribe("booking.*", "notify", func(*Message) { b++ }))

	for i := 0; i < 4; i++ {
		require.NoError(t, bus.Publish(context.Background(), BookingCreated, BookingCreatedEvent{}))
	}
	assert.Equal(t, 4, a+b)
	assert.Equal(t, 2, a)
}

func TestLocalBus_ClosedRejectsPublish(t *testing.T) {
	bus := NewLocalBus()
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), BookingCreated, BookingCreatedEvent{}))
}
