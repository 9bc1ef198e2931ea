// Package canned answers chat messages with fixed keyword-matched texts.
//
// It is the web demo's offline mode and never calls a model. The
// multi-persona flow lives in package conversation.
package canned

import (
	"strings"

	"github.com/samber/lo"
)

// Category is the topic a message was matched to.
type Category int

const (
	// General is the fallback when no keyword matches.
	General Category = iota
	// MentalHealth covers anxiety, stress, worry and depression.
	MentalHealth
	// Medical covers common physical symptoms.
	Medical
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case MentalHealth:
		return "mental_health"
	case Medical:
		return "medical"
	default:
		return "general"
	}
}

// Keywords are matched as substrings of the lower-cased message, so
// "depress" also matches "depressed" and "depression".
var (
	MentalHealthKeywords = []string{"anxious", "stress", "worry", "depress"}
	MedicalKeywords      = []string{"headache", "fever", "pain", "sick"}
)

const mentalHealthText = `I understand you're dealing with some difficult emotions. As your mental health specialist, I recommend:

1. Practice deep breathing exercises - inhale for 4 counts, hold for 4, exhale for 6
2. Try a 10-minute mindfulness meditation using an app like Calm or Headspace
3. Consider talking to a therapist who can provide personalized strategies
4. Maintain a regular sleep schedule and limit caffeine

Remember, I'm here for support, but for ongoing mental health concerns, please consult a licensed mental health professional.`

const medicalText = `As your medical advisor, I can suggest:

For headache and mild fever:
1. Rest and stay hydrated with water or electrolyte drinks
2. Over-the-counter pain relievers like acetaminophen may help (follow package instructions)
3. Use a cool compress on your forehead
4. Monitor your temperature - if it reaches 102°F or higher, consult a doctor

Please see a healthcare provider if symptoms worsen or persist beyond 3 days, or if you develop difficulty breathing, severe pain, or other concerning symptoms.`

const generalText = `Thank you for sharing your health concerns. I'm connecting you with our healthcare specialists who can provide appropriate guidance.

As a reminder, I'm an AI assistant designed to offer general health information and support, but I cannot provide medical diagnoses or replace professional healthcare. For serious or emergency medical issues, please contact healthcare providers directly.`

// Classify returns the first category whose keywords appear in message.
// Mental health is checked before medical.
func Classify(message string) Category {
	lower := strings.ToLower(message)
	contains := func(keyword string) bool { return strings.Contains(lower, keyword) }

	switch {
	case lo.SomeBy(MentalHealthKeywords, contains):
		return MentalHealth
	case lo.SomeBy(MedicalKeywords, contains):
		return Medical
	default:
		return General
	}
}

// Text returns the canned reply for c.
func Text(c Category) string {
	switch c {
	case MentalHealth:
		return mentalHealthText
	case Medical:
		return medicalText
	default:
		return generalText
	}
}

// Respond classifies message and returns the matching canned reply.
func Respond(message string) string {
	return Text(Classify(message))
}
