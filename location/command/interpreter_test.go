package command

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/location"
)

func TestInterpreter_Parse(t *testing.T) {
	interp := NewInterpreter(nil)

	testCases := []struct {
		name     string
		input    string
		expected location.ParsedLocationCommand
	}{
		{
			name:  "generic category with article",
			input: "remind me to buy milk when I reach a store",
			expected: location.ParsedLocationCommand{
				Message:       "buy milk",
				LocationType:  location.GenericCategory,
				PlaceCategory: location.CategoryStore,
			},
		},
		{
			name:  "named place without article",
			input: "remind me to take medicine when I get home",
			expected: location.ParsedLocationCommand{
				Message:      "take medicine",
				LocationType: location.SpecificPlace,
				PlaceName:    "home",
			},
		},
		{
			name:  "get to the office",
			input: "Remind me to print the slides when I get to the office",
			expected: location.ParsedLocationCommand{
				Message:      "print the slides",
				LocationType: location.SpecificPlace,
				PlaceName:    "office",
			},
		},
		{
			name:  "multi-word category keyword wins over shorter one",
			input: "pick up eggs when I reach a grocery store",
			expected: location.ParsedLocationCommand{
				Message:       "pick up eggs",
				LocationType:  location.GenericCategory,
				PlaceCategory: location.CategoryGrocery,
			},
		},
		{
			name:  "near the pharmacy",
			input: "refill prescription near the pharmacy",
			expected: location.ParsedLocationCommand{
				Message:       "refill prescription",
				LocationType:  location.GenericCategory,
				PlaceCategory: location.CategoryPharmacy,
			},
		},
		{
			name:  "any gas station",
			input: "check tire pressure when I arrive at any gas station",
			expected: location.ParsedLocationCommand{
				Message:       "check tire pressure",
				LocationType:  location.GenericCategory,
				PlaceCategory: location.CategoryGasStation,
			},
		},
		{
			name:  "location clause first",
			input: "At the gym, remember to stretch.",
			expected: location.ParsedLocationCommand{
				Message:      "stretch",
				LocationType: location.SpecificPlace,
				PlaceName:    "gym",
			},
		},
		{
			name:  "mixed case and extra whitespace",
			input: "  REMIND me to   call   Sam   WHEN  I  REACH   WORK ",
			expected: location.ParsedLocationCommand{
				Message:      "call Sam",
				LocationType: location.SpecificPlace,
				PlaceName:    "work",
			},
		},
		{
			name:  "restaurant",
			input: "ask about the menu when I'm at the restaurant",
			expected: location.ParsedLocationCommand{
				Message:       "ask about the menu",
				LocationType:  location.GenericCategory,
				PlaceCategory: location.CategoryRestaurant,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := interp.Parse(tc.input)
			require.True(t, ok, "expected %q to parse", tc.input)
			assert.Equal(t, tc.expected, *got)
		})
	}
}

func TestInterpreter_ParseNoMatch(t *testing.T) {
	interp := NewInterpreter(nil)

	testCases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no trigger phrase", "remind me to buy milk tomorrow at 5pm"},
		{"trigger without place", "remind me to wave when I reach the summit"},
		{"only trigger and place", "when I reach a store"},
		{"only boilerplate left", "remind me to when I get home"},
		{"keyword is a prefix of a longer word", "buy snacks when I reach the shopping centre"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := interp.Parse(tc.input)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestInterpreter_IsLocationCommand(t *testing.T) {
	interp := NewInterpreter(nil)

	assert.True(t, interp.IsLocationCommand("buy milk when I reach a store"))
	assert.True(t, interp.IsLocationCommand("wave when I reach the summit"))
	assert.True(t, interp.IsLocationCommand("NEAR THE park"))
	assert.False(t, interp.IsLocationCommand("buy milk tomorrow"))
	assert.False(t, interp.IsLocationCommand("meet at 5pm"))
}

func TestInterpreter_SavedPlaceNames(t *testing.T) {
	interp := NewInterpreter(nil)

	_, ok := interp.Parse("water the plants when I get to Grandma's House")
	require.False(t, ok)

	interp.SetPlaceNames([]string{"Grandma's House", "  lake   cabin "})

	got, ok := interp.Parse("water the plants when I get to grandma's house")
	require.True(t, ok)
	assert.Equal(t, location.SpecificPlace, got.LocationType)
	assert.Equal(t, "Grandma's House", got.PlaceName)
	assert.Equal(t, "water the plants", got.Message)

	got, ok = interp.Parse("bring firewood when I reach the Lake Cabin")
	require.True(t, ok)
	assert.Equal(t, "lake cabin", got.PlaceName)

	// Saved names take precedence over category keywords.
	interp.SetPlaceNames([]string{"store"})
	got, ok = interp.Parse("drop the parcel when I reach the store")
	require.True(t, ok)
	assert.Equal(t, location.SpecificPlace, got.LocationType)
	assert.Equal(t, "store", got.PlaceName)
}

func TestInterpreter_ParseIsPure(t *testing.T) {
	interp := NewInterpreter(nil)
	input := "remind me to buy milk when I reach a store"

	first, ok := interp.Parse(input)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := interp.Parse(input)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestInterpreter_Concurrent(t *testing.T) {
	interp := NewInterpreter(nil)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				interp.SetPlaceNames([]string{"cabin", "studio"})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				got, ok := interp.Parse("take medicine when I get home")
				if assert.True(t, ok) {
					assert.Equal(t, "home", got.PlaceName)
				}
			}
		}()
	}
	wg.Wait()
}

func TestParsedLocationCommand_LocationData(t *testing.T) {
	interp := NewInterpreter(nil)

	got, ok := interp.Parse("buy milk when I reach a store")
	require.True(t, ok)
	data := got.LocationData()
	assert.Equal(t, location.GenericCategory, data.LocationType)
	assert.Equal(t, location.CategoryStore, data.Category())
	assert.Equal(t, 200.0, data.Radius())
	assert.NoError(t, data.Validate())

	got, ok = interp.Parse("take medicine when I get home")
	require.True(t, ok)
	data = got.LocationData()
	assert.Equal(t, "home", data.Name())
	assert.Equal(t, 100.0, data.Radius())
}
