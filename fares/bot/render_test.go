package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/farebot/fares/browse"
	"github.com/m3rciful/farebot/fares/catalog"
	"github.com/m3rciful/farebot/fares/registration"
	"github.com/m3rciful/farebot/fares/search"
	"github.com/m3rciful/farebot/fares/tracker"
)

func TestCityListText(t *testing.T) {
	entries := []catalog.CityEntry{{City: "Paris"}, {City: "Tokyo"}, {City: "Rome"}, {City: "Oslo"}, {City: "Lima"}}
	lines := strings.Split(cityListText(entries), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "1. Paris"))
	assert.True(t, strings.HasSuffix(lines[0], "4. Oslo"))
	assert.Equal(t, "3. Rome", lines[2], "the odd entry is kept")
	assert.Empty(t, cityListText(nil))
}

func TestPageText(t *testing.T) {
	p := browse.Page{
		Index: 2,
		Entry: catalog.CityEntry{City: "Tashkent", IATACode: "TAS"},
		Flights: []search.FlightOption{
			{Price: decimal.NewFromInt(480), DestinationCity: "Tashkent", Stops: 1, BookingLink: "https://book/1?a=1&b=2", DepartureDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
			{Price: decimal.RequireFromString("512.5"), DestinationCity: "Tashkent", BookingLink: "https://book/2"},
		},
	}
	text := pageText(p, "Warsaw Chopin")
	assert.True(t, strings.HasPrefix(text, "3. 📍 Warsaw Chopin - Tashkent\n\n"))
	assert.Contains(t, text, "1) TAS (2026-03-01) - €480\n Stops🔄: 1")
	assert.Contains(t, text, "href='https://book/1?a=1&amp;b=2'")
	assert.Contains(t, text, flightSeparator+"2) TAS (?) - €512.5")

	empty := pageText(browse.Page{Entry: catalog.CityEntry{City: "Oslo"}}, "Warsaw Chopin")
	assert.Equal(t, "Sorry, no available flights for Oslo. Try other cities!", empty)
}

func TestPriceAlertText(t *testing.T) {
	text := priceAlertText(tracker.PriceChanged{
		Ticket:      tracker.Ticket{City: "Tashkent"},
		NewPrice:    decimal.NewFromInt(480),
		Direction:   tracker.Decreased,
		BookingLink: "https://book/1",
	})
	assert.Contains(t, text, "The price for Tashkent ticket has decreased to €480.")
	assert.Contains(t, text, "<a href='https://book/1'>")
}

func TestRegistrationText(t *testing.T) {
	assert.Equal(t, textCityPrompt, registrationText(registration.Reply{Outcome: registration.OutcomeStarted}, "Ann"))
	assert.Equal(t, "Emails do not match. Please try again.", registrationText(registration.Reply{Outcome: registration.OutcomeEmailMismatch}, "Ann"))
	assert.Equal(t, "Thanks for subscribing Ann!\nTry /search 👈🏿", registrationText(registration.Reply{Outcome: registration.OutcomeCompleted}, "Ann"))
	assert.Contains(t, registrationText(registration.Reply{Outcome: registration.OutcomeSessionAbsent}, "Ann"), "cannot type directly")
}

func TestUntrackedText(t *testing.T) {
	assert.Equal(t, "You are no longer tracking *New\\_York*.", untrackedText(tracker.Ticket{City: "New_York"}, true))
	assert.Contains(t, untrackedText(tracker.Ticket{}, false), "not tracking")
}
