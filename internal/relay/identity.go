// ABOUTME: Participant identifier format validation
// ABOUTME: Syntactic check only; identity existence is never verified here

package relay

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// participantIDPattern is the accepted identifier shape. The character
// class deliberately excludes ':' so keys stay injective. Existence of
// the identity in the external account store is a different question and
// is never checked on the message path.
var participantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag or nil func.
	if err := v.RegisterValidation("participant_id", func(fl validator.FieldLevel) bool {
		return participantIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidParticipantID reports whether id is a syntactically valid
// participant identifier.
func ValidParticipantID(id string) bool {
	return validate.Var(id, "required,participant_id") == nil
}
