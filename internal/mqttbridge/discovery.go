package mqttbridge

import (
	"hifibridge/internal/zone"
)

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
}

// haSensorConfig is the Home Assistant MQTT discovery payload for a sensor.
type haSensorConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id"`
	StateTopic          string   `json:"state_topic"`
	ValueTemplate       string   `json:"value_template"`
	JSONAttributesTopic string   `json:"json_attributes_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Icon                string   `json:"icon"`
	Device              haDevice `json:"device"`
}

func discoveryConfig(opts Options, z zone.Zone) haSensorConfig {
	id := objectID(z.ID)
	state := StateTopic(opts.TopicPrefix, z.ID)
	name := z.Name
	if name == "" {
		name = z.ID
	}
	return haSensorConfig{
		Name:                name,
		UniqueID:            id,
		ObjectID:            id,
		StateTopic:          state,
		ValueTemplate:       "{{ value_json.state }}",
		JSONAttributesTopic: state,
		AvailabilityTopic:   StatusTopic(opts.TopicPrefix),
		Icon:                "mdi:speaker",
		Device: haDevice{
			Identifiers:  []string{id},
			Name:         name,
			Manufacturer: "hifibridge",
			Model:        z.Source,
		},
	}
}
