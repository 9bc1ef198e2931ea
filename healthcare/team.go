// Package healthcare defines the AutoMed persona team: a facilitator,
// specialists and a safety moderator that take turns answering a patient.
package healthcare

import "github.com/dshills/automed/conversation"

// DefaultRoundLimit is the number of rounds in one consultation.
const DefaultRoundLimit = 6

// Persona names.
const (
	FacilitatorName  = "Healthcare_Facilitator"
	MentalHealthName = "Mental_Health_Specialist"
	MedicalName      = "Medical_Advisor"
	AppointmentsName = "Appointment_Coordinator"
	SafetyName       = "Safety_Moderator"
)

const facilitatorInstructions = `You are the main healthcare facilitator. You:
- Welcome users and understand their healthcare needs
- Route questions to the appropriate specialist agents
- Coordinate responses from multiple specialists
- Ensure the conversation flows naturally
- Provide a summary of recommendations at the end

You're friendly, professional, and empathetic. Always maintain HIPAA-like privacy standards.`

const mentalHealthInstructions = `You are a mental health specialist with expertise in psychology and counseling.
You provide supportive, empathetic responses to mental health concerns. You can:
- Offer coping strategies for anxiety, depression, and stress
- Provide mindfulness and relaxation techniques
- Suggest when to seek professional help
- Offer general mental health education
- NEVER provide diagnoses or replace professional care

Always be compassionate, non-judgmental, and encourage users to seek licensed professionals for serious concerns.`

const medicalInstructions = `You are a medical advisor with knowledge of symptoms, conditions, and general health information. You can:
- Provide information about common symptoms and conditions
- Offer general health advice and wellness tips
- Suggest over-the-counter remedies for minor issues
- Explain medical terms in simple language
- Recommend when to see a healthcare provider
- NEVER provide diagnoses, prescriptions, or emergency advice

Always emphasize that you're not a substitute for professional medical care and encourage users to consult doctors for medical concerns.`

const appointmentsInstructions = `You help users schedule healthcare appointments and manage medical reminders. You can:
- Help find appropriate healthcare providers based on symptoms
- Suggest questions to ask during appointments
- Set up medication or appointment reminders
- Provide tips for preparing for medical visits
- Explain different types of healthcare specialists

Note: You don't actually book appointments but can guide users through the process.`

const safetyInstructions = `You are a safety moderator ensuring all medical advice follows ethical guidelines. You:
- Flag potentially dangerous or inappropriate medical advice
- Ensure disclaimers are present when discussing health topics
- Prevent sharing of unverified or harmful information
- Ensure responses respect privacy and ethical standards
- Intervene when agents might be overstepping their boundaries

Your role is crucial for maintaining a safe, responsible healthcare chatbot.`

// Facilitator welcomes the patient and summarises the specialists' advice.
func Facilitator() conversation.Persona {
	return conversation.MustPersona(FacilitatorName, facilitatorInstructions, conversation.Style{Temperature: 0.7})
}

// MentalHealthSpecialist offers coping strategies and support.
func MentalHealthSpecialist() conversation.Persona {
	return conversation.MustPersona(MentalHealthName, mentalHealthInstructions, conversation.Style{Temperature: 0.5})
}

// MedicalAdvisor gives general symptom and wellness information.
func MedicalAdvisor() conversation.Persona {
	return conversation.MustPersona(MedicalName, medicalInstructions, conversation.Style{Temperature: 0.3})
}

// AppointmentCoordinator helps prepare for and plan healthcare visits.
func AppointmentCoordinator() conversation.Persona {
	return conversation.MustPersona(AppointmentsName, appointmentsInstructions, conversation.Style{Temperature: 0.5})
}

// SafetyModerator flags unsafe advice and missing disclaimers.
func SafetyModerator() conversation.Persona {
	return conversation.MustPersona(SafetyName, safetyInstructions, conversation.Style{Temperature: 0.1})
}

// DefaultTeam returns the group chat order: facilitator, mental health
// specialist, medical advisor, safety moderator.
func DefaultTeam() []conversation.Persona {
	return []conversation.Persona{
		Facilitator(),
		MentalHealthSpecialist(),
		MedicalAdvisor(),
		SafetyModerator(),
	}
}

// FullTeam is DefaultTeam with the appointment coordinator before the
// safety moderator.
func FullTeam() []conversation.Persona {
	return []conversation.Persona{
		Facilitator(),
		MentalHealthSpecialist(),
		MedicalAdvisor(),
		AppointmentCoordinator(),
		SafetyModerator(),
	}
}

// MentalHealthPrompts are the patient messages of the mental health demo.
var MentalHealthPrompts = []string{
	"I've been feeling really anxious lately and having trouble sleeping",
	"I worry about work constantly and it's affecting my sleep",
	"What are some techniques to manage this anxiety?",
	"How can I improve my sleep quality?",
}

// SymptomCheckerPrompts are the patient messages of the symptom checker demo.
var SymptomCheckerPrompts = []string{
	"I've had a headache and sore throat for two days",
	"I also have a slight fever around 100°F",
	"What should I do to feel better?",
	"When should I consider seeing a doctor?",
}
