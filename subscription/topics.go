package subscription

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360/ledpush/errors"
)

// Template placeholders.
const (
	ParamUserID   = "userId"
	ParamOrgID    = "orgId"
	ParamDeviceID = "deviceId"
	ParamTaskID   = "taskId"
	ParamBatchID  = "batchId"
)

var (
	destinationPattern = regexp.MustCompile(`^/(topic|queue|user)(/[A-Za-z0-9_.\-]+)+$`)
	segmentPattern     = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)
)

// Topics holds the destination templates. Placeholders are written {name}.
type Topics struct {
	PersonalQueue     string `json:"personal_queue" yaml:"personal_queue"`
	OrgTopic          string `json:"org_topic" yaml:"org_topic"`
	SystemTopic       string `json:"system_topic" yaml:"system_topic"`
	DeviceTopic       string `json:"device_topic" yaml:"device_topic"`
	TaskTopic         string `json:"task_topic" yaml:"task_topic"`
	BatchTopic        string `json:"batch_topic" yaml:"batch_topic"`
	UserNotifications string `json:"user_notifications" yaml:"user_notifications"`
	// AckDestination receives acknowledgements. It is a send destination and
	// is not checked against the subscription grammar.
	AckDestination string `json:"ack_destination" yaml:"ack_destination"`
}

// DefaultTopics returns the standard destination layout.
func DefaultTopics() Topics {
	return Topics{
		PersonalQueue:     "/queue/user/{userId}",
		OrgTopic:          "/topic/org/{orgId}",
		SystemTopic:       "/topic/system",
		DeviceTopic:       "/topic/device/{deviceId}",
		TaskTopic:         "/topic/task/{taskId}",
		BatchTopic:        "/topic/batch/{batchId}",
		UserNotifications: "/user/{userId}/queue/notifications",
		AckDestination:    "/app/message/ack",
	}
}

// Validate renders every template with sample values and checks the result.
func (t Topics) Validate() error {
	sample := map[string]string{
		ParamUserID:   "1",
		ParamOrgID:    "1",
		ParamDeviceID: "1",
		ParamTaskID:   "1",
		ParamBatchID:  "1",
	}
	templates := []struct{ name, tmpl string }{
		{"personal_queue", t.PersonalQueue},
		{"org_topic", t.OrgTopic},
		{"system_topic", t.SystemTopic},
		{"device_topic", t.DeviceTopic},
		{"task_topic", t.TaskTopic},
		{"batch_topic", t.BatchTopic},
		{"user_notifications", t.UserNotifications},
	}
	for _, tt := range templates {
		if _, err := Render(tt.tmpl, sample); err != nil {
			return fmt.Errorf("%w: topics.%s: %v", errors.ErrInvalidConfig, tt.name, err)
		}
	}
	if !strings.HasPrefix(t.AckDestination, "/") {
		return fmt.Errorf("%w: topics.ack_destination %q must start with /", errors.ErrInvalidConfig, t.AckDestination)
	}
	return nil
}

// ValidateDestination checks destination against the grammar
// /(topic|queue|user)/segment[/segment...].
func ValidateDestination(destination string) error {
	if !destinationPattern.MatchString(destination) {
		return errors.New(errors.KindInvalidTopic, "subscription.ValidateDestination",
			fmt.Errorf("%w: %q", errors.ErrInvalidTopic, destination))
	}
	return nil
}

// Render substitutes params into template and validates the result. Every
// placeholder must be supplied and every value must be a single path segment.
func Render(template string, params map[string]string) (string, error) {
	const op = "subscription.Render"

	var renderErr error
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := params[name]
		switch {
		case renderErr != nil:
		case !ok:
			renderErr = fmt.Errorf("%w: no value for {%s} in %q", errors.ErrInvalidTopic, name, template)
		case !segmentPattern.MatchString(value):
			renderErr = fmt.Errorf("%w: value %q for {%s} is not a path segment", errors.ErrInvalidTopic, value, name)
		}
		return value
	})
	if renderErr != nil {
		return "", errors.New(errors.KindInvalidTopic, op, renderErr)
	}
	if err := ValidateDestination(out); err != nil {
		return "", err
	}
	return out, nil
}

func userParams(u User) map[string]string {
	return map[string]string{
		ParamUserID: strconv.FormatInt(u.UID, 10),
		ParamOrgID:  strconv.FormatInt(u.OID, 10),
	}
}

// AutoDestinations renders the personal queue, org topic and system topic for u.
func (t Topics) AutoDestinations(u User) ([]string, error) {
	params := userParams(u)
	out := make([]string, 0, 3)
	for _, tmpl := range []string{t.PersonalQueue, t.OrgTopic, t.SystemTopic} {
		dest, err := Render(tmpl, params)
		if err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, nil
}
