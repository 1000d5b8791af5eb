package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestReadingsPipeline(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		duration string
		stages   int
		cutoff   time.Time
	}{
		{duration: "hour", stages: 2, cutoff: now.Add(-time.Hour)},
		{duration: "", stages: 2, cutoff: now.Add(-time.Hour)},
		{duration: "day", stages: 2, cutoff: now.AddDate(0, 0, -1)},
		{duration: "week", stages: 4, cutoff: now.AddDate(0, 0, -7)},
		{duration: "month", stages: 4, cutoff: now.AddDate(0, -1, 0)},
		{duration: "YEAR", stages: 4, cutoff: now.AddDate(-1, 0, 0)},
	}

	for _, tt := range testCases {
		t.Run(tt.duration, func(t *testing.T) {
			pipeline := readingsPipeline(tt.duration, now)
			require.Len(t, pipeline, tt.stages)

			var cutoff time.Time
			var found bool
			for _, stage := range pipeline {
				if stage[0].Key != "$match" {
					continue
				}
				match := stage[0].Value.(bson.D)
				cond := match[0].Value.(bson.D)
				cutoff = cond[0].Value.(time.Time)
				found = true
			}
			require.True(t, found)
			assert.Equal(t, tt.cutoff, cutoff)
		})
	}
}

func TestReadingsPipeline_GroupsKeepLastReading(t *testing.T) {
	pipeline := readingsPipeline("year", time.Now().UTC())

	var group bson.D
	for _, stage := range pipeline {
		if stage[0].Key == "$group" {
			group = stage[0].Value.(bson.D)
		}
	}
	require.NotNil(t, group)

	assert.Equal(t, "_id", group[0].Key)
	assert.Equal(t, "$Month", group[0].Value)

	fields := make(map[string]any, len(group)-1)
	for _, e := range group[1:] {
		fields[e.Key] = e.Value
	}
	for _, field := range []string{"device", "location", "temperature", "humidity", "connectivity", "mode", "ecoMode", "setPoint", "hvac"} {
		require.Contains(t, fields, field)
		assert.Equal(t, bson.D{{Key: "$last", Value: "$" + field}}, fields[field])
	}
}
