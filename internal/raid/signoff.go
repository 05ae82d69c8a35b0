package raid

import "math/rand"

var thankYous = []string{
	"Cheers",
	"Thank you",
	"Thank you so much",
	"Thanks",
	"Thanks a bunch",
	"Thanks a million",
	"Ta",
	"Tak",
	"Dank u",
	"Kiitos",
	"Merci",
	"Merci beaucoup",
	"Danke",
	"Danke schön",
	"Danke vielmals",
	"Mahalo",
	"Grazie",
	"Arigato",
	"Obrigado",
	"Gracias",
	"Xie xie",
	"Shukran",
	"Hvala",
	"Efharisto",
	"Dhanyavaad",
	"Spasiba",
	"Salamat",
	"Khob khun",
}

// Composer turns a message template into the text that is sent.
type Composer func(message string) string

// Plain sends the template unchanged.
func Plain(message string) string { return message }

// SignOff appends a random thank-you line to the template.
func SignOff(message string) string {
	return message + "\n" + thankYous[rand.Intn(len(thankYous))] + "!"
}
