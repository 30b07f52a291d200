package classify

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"alert-harvest/internal/harvest/model"
)

// Shape is the structural variant of a message, decided before any keyword
// search runs.
type Shape int

const (
	// ShapeCandidate is an integration or bot post that may be an alert.
	ShapeCandidate Shape = iota
	// ShapeHuman carries a client_msg_id.
	ShapeHuman
	// ShapeNoiseBot was posted by a decorative integration such as giphy.
	ShapeNoiseBot
	// ShapeForeignSubtype has a subtype other than bot_message.
	ShapeForeignSubtype
	// ShapeAuthoredAttachment has an attachment with an author_subname.
	ShapeAuthoredAttachment
	// ShapeHumanFile has a file explicitly marked as not displayed as bot.
	ShapeHumanFile
)

func (s Shape) String() string {
	switch s {
	case ShapeCandidate:
		return "candidate"
	case ShapeHuman:
		return "human"
	case ShapeNoiseBot:
		return "noise bot"
	case ShapeForeignSubtype:
		return "non-integration subtype"
	case ShapeAuthoredAttachment:
		return "authored attachment"
	case ShapeHumanFile:
		return "human file"
	default:
		return "unknown"
	}
}

var noiseBots = []string{"giphy", "polly"}

// family is a vendor label and the lower-case keywords that identify it.
type family struct {
	alertType model.AlertType
	keywords  []string
}

// families is in priority order: when several match, the earliest wins.
var families = []family{
	{model.Cloudwatch, []string{"cloudwatch", "cloud watch", "aws cloudwatch", "marbot", "aws chatbot", "amazon cloudwatch"}},
	{model.Honeybadger, []string{"honeybadger"}},
	{model.NewRelic, []string{"newrelic", "new relic"}},
	{model.Datadog, []string{"datadog"}},
	{model.DrDroid, []string{"drdroid", "doctordroid", "dr droid", "dr. droid", "dr.droid"}},
	{model.Sentry, []string{"sentry"}},
	{model.Grafana, []string{"grafana"}},
}

var keywords = newKeywordMatcher(families)

type keywordMatcher struct {
	matcher *ahocorasick.Matcher
	// owner maps a dictionary index to its family index.
	owner []int
}

func newKeywordMatcher(fams []family) *keywordMatcher {
	var dict []string
	var owner []int
	for i, f := range fams {
		for _, kw := range f.keywords {
			dict = append(dict, kw)
			owner = append(owner, i)
		}
	}
	return &keywordMatcher{matcher: ahocorasick.NewStringMatcher(dict), owner: owner}
}

// match returns the highest-priority family found in text.
func (k *keywordMatcher) match(text string) (model.AlertType, bool) {
	hits := k.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	best := -1
	for _, hit := range hits {
		if fam := k.owner[hit]; best < 0 || fam < best {
			best = fam
		}
	}
	if best < 0 {
		return "", false
	}
	return families[best].alertType, true
}

// ShapeOf runs the structural checks in order; the first that applies decides.
func ShapeOf(env Envelope) Shape {
	switch {
	case env.HasClientMsgID:
		return ShapeHuman
	case env.BotProfile != nil:
		if isNoiseBot(env.BotProfile.Name) {
			return ShapeNoiseBot
		}
		return ShapeCandidate
	case env.HasSubtype:
		if env.Subtype != "bot_message" {
			return ShapeForeignSubtype
		}
		return ShapeCandidate
	case len(env.Attachments) > 0:
		for _, a := range env.Attachments {
			if a.HasAuthorSubname {
				return ShapeAuthoredAttachment
			}
		}
		return ShapeCandidate
	case len(env.Files) > 0:
		for _, f := range env.Files {
			if f.DisplayAsBot != nil && !*f.DisplayAsBot {
				return ShapeHumanFile
			}
		}
		return ShapeCandidate
	default:
		return ShapeCandidate
	}
}

func isNoiseBot(name string) bool {
	name = strings.ToLower(name)
	for _, bot := range noiseBots {
		if strings.Contains(name, bot) {
			return true
		}
	}
	return false
}

// Classify labels a message with its alert source. It always returns a label:
// model.NotAnAlert for non-candidate shapes, a vendor when a keyword family
// matches, model.Custom otherwise.
func Classify(env Envelope) model.AlertType {
	switch ShapeOf(env) {
	case ShapeHuman, ShapeNoiseBot, ShapeForeignSubtype, ShapeAuthoredAttachment, ShapeHumanFile:
		return model.NotAnAlert
	case ShapeCandidate:
		if t, ok := keywords.match(env.Serialized); ok {
			return t
		}
		return model.Custom
	default:
		return model.Custom
	}
}
