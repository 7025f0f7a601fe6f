package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTitles(t *testing.T) {
	got := splitTitles([]string{"Splendid_fairywren, Zürich", "Bern", " ,"})
	assert.Equal(t, []string{"Splendid_fairywren", "Zürich", "Bern"}, got)
}
