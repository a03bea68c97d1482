package config

// DefaultInterestedKeywords match replies that signal interest.
var DefaultInterestedKeywords = []string{
	"looking to connect",
	"software developer",
	"let's connect",
	"lets connect",
	"sounds great",
	"sounds good",
	"count me in",
	"sign me up",
	"schedule a call",
	"let's talk",
	"would love to",
}

// DefaultMoreInformationKeywords match replies asking for details.
var DefaultMoreInformationKeywords = []string{
	"more information",
	"more info",
	"tell me more",
	"do you offer",
	"course",
	"pricing",
	"how much",
	"details",
	"brochure",
}

// DefaultTemplates are used when no reply templates are configured.
var DefaultTemplates = map[string]string{
	"interested": "Hi {{.SenderName}},\n\n" +
		"Thanks for reaching out! We'd love to connect. " +
		"Reply with a couple of times that work for you and we'll set up a call.\n\n" +
		"Best regards",
	"more_information": "Hi {{.SenderName}},\n\n" +
		"Thanks for your interest. You can find our courses, pricing and schedules on our website, " +
		"and we're happy to answer any specific questions by email.\n\n" +
		"Best regards",
	"not_interested": "Hi {{.SenderName}},\n\n" +
		"Thanks for letting us know. We won't follow up further, " +
		"but feel free to get in touch any time.\n\n" +
		"Best regards",
}
