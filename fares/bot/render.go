package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/m3rciful/farebot/core/telegram/format"
	"github.com/m3rciful/farebot/core/telegram/keyboard"
	"github.com/m3rciful/farebot/fares/browse"
	"github.com/m3rciful/farebot/fares/catalog"
	"github.com/m3rciful/farebot/fares/registration"
	"github.com/m3rciful/farebot/fares/search"
	"github.com/m3rciful/farebot/fares/tracker"

	tele "gopkg.in/telebot.v4"
)

// fareUnique is the callback key of the paging keyboard.
const fareUnique = "fare"

const (
	payloadNext     = "next"
	payloadPrevious = "previous"
)

const (
	textCityPrompt     = "Which city are you interested in🤩? (e.g., Tashkent): "
	textUnavailable    = "Development in progress🏗\nPlease try again later⌛️."
	textSearchFailed   = "Search is temporarily unavailable. Please try again later⌛️."
	textUnknownCommand = "Sorry, I didn't understand that command!\nTry /start, /search"
	textUnknownDoc     = "Sorry, I can only read text messages."
	textSlowDown       = "Too many requests, please slow down."
	textAdminOnly      = "This command is for the bot operator only."
	textStaleButton    = "This button has expired. Send /search again."
	flightSeparator    = "\n______________________________\n\n"
	columnWidth        = 40
)

func htmlOpts(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true, ReplyMarkup: markup}
}

func welcomeText(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return "Hi " + name + "! 👋 Welcome to SS bot. Here is what I can do:\n" +
		"– Search for cheapest flights 🔎\n" +
		"– Track tickets prices 👀\n" +
		"– Notify about price changes 🔔\n\n" +
		"Shall we start? 👇"
}

func searchIntroText(homeCity string) string {
	return "Here are some tickets from " + homeCity + "🔍..."
}

// cityListText numbers the entries in two columns, left column first.
func cityListText(entries []catalog.CityEntry) string {
	if len(entries) == 0 {
		return ""
	}
	numbered := make([]string, len(entries))
	for i, e := range entries {
		numbered[i] = strconv.Itoa(i+1) + ". " + e.City
	}
	rows := (len(numbered) + 1) / 2
	lines := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		left := numbered[i]
		if j := i + rows; j < len(numbered) {
			lines = append(lines, fmt.Sprintf("%-*s%s", columnWidth, left, numbered[j]))
			continue
		}
		lines = append(lines, left)
	}
	return strings.Join(lines, "\n")
}

func noFlightsText(city string) string {
	return "Sorry, no available flights for " + html.EscapeString(city) + ". Try other cities!"
}

func flightLine(i int, code string, f search.FlightOption) string {
	date := "?"
	if !f.DepartureDate.IsZero() {
		date = f.DepartureDate.Format("2006-01-02")
	}
	return fmt.Sprintf("%d) %s (%s) - €%s\n Stops🔄: %d\nBuy ticket <a href='%s'>Click Here</a>",
		i+1, html.EscapeString(code), date, f.Price.String(), f.Stops, html.EscapeString(f.BookingLink))
}

// pageText renders one page of the browser as HTML.
func pageText(p browse.Page, homeAirportName string) string {
	if len(p.Flights) == 0 {
		return noFlightsText(p.Entry.City)
	}
	dest := p.Flights[0].DestinationCity
	if dest == "" {
		dest = p.Entry.City
	}
	lines := make([]string, len(p.Flights))
	for i, f := range p.Flights {
		lines[i] = flightLine(i, p.Entry.IATACode, f)
	}
	header := fmt.Sprintf("%d. 📍 %s - %s\n\n", p.Index+1, html.EscapeString(homeAirportName), html.EscapeString(dest))
	return header + strings.Join(lines, flightSeparator)
}

func pageKeyboard(index int) *tele.ReplyMarkup {
	return keyboard.InlineRows([]keyboard.InlineBtn{
		{Text: "<", Unique: fareUnique, Data: payloadPrevious},
		{Text: "Track Ticket", Unique: fareUnique, Data: strconv.Itoa(index)},
		{Text: ">", Unique: fareUnique, Data: payloadNext},
	})
}

func trackedText(t tracker.Ticket) string {
	return fmt.Sprintf("The price for <a href='%s'>%s</a> is being tracked👀\nWe'll notify you of any price changes📩",
		html.EscapeString(t.BookingLink), html.EscapeString(t.City))
}

func priceAlertText(ev tracker.PriceChanged) string {
	return fmt.Sprintf("🚨 Price Alert! 🚨\n\nThe price for %s ticket has %s to €%s.\n🔗 <a href='%s'>Click Here to View and Buy the Ticket</a>.",
		html.EscapeString(ev.Ticket.City), ev.Direction, ev.NewPrice.String(), html.EscapeString(ev.BookingLink))
}

func untrackedText(t tracker.Ticket, ok bool) string {
	if !ok {
		return "You are not tracking any ticket. Try /search"
	}
	return "You are no longer tracking *" + format.EscapeMarkdown(t.City) + "*."
}

func reloadText(source string, cities int, err error) string {
	if err != nil {
		return "Reload failed: no reference source answered. The bot keeps its current data."
	}
	return fmt.Sprintf("Reference data reloaded from *%s*: %d cities.", format.EscapeMarkdown(source), cities)
}

// registrationText maps a flow reply to what the user reads.
func registrationText(r registration.Reply, firstName string) string {
	switch r.Outcome {
	case registration.OutcomeStarted:
		return textCityPrompt
	case registration.OutcomeCityAccepted:
		return "Enter your Email: "
	case registration.OutcomeInvalidCity:
		return "Sorry, the entered city is not valid. Please enter a valid city."
	case registration.OutcomeCityUnavailable:
		return "Sorry, we could not look up that city right now. Please try again."
	case registration.OutcomeEmailReceived:
		return "Enter your Email again: "
	case registration.OutcomeEmailMismatch:
		return "Emails do not match. Please try again."
	case registration.OutcomeCompleted:
		return "Thanks for subscribing " + firstName + "!\nTry /search 👈🏿"
	default:
		return "Sorry, you cannot type directly. Please choose one of the above👆🏿"
	}
}
