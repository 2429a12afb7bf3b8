package loadgen

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/uva-clima/go-inmet/pkg/types"
)

// HubPayloadGenerator emits structured hub payloads with plausible readings
// for every canonical channel. Occasional channels are dropped to mimic
// stations with offline sensors.
type HubPayloadGenerator struct {
	// DropRate is the probability a given channel is omitted from an event.
	DropRate float64
}

// ranges are rough southeastern-Brazil weather bounds per channel.
var ranges = map[string][2]float64{
	"temp_ar":      {8, 38},
	"umidade":      {20, 100},
	"radiacao":     {0, 1200},
	"vento_vel":    {0, 12},
	"precipitacao": {0, 30},
	"pressao":      {980, 1035},
}

// GeneratePayload implements PayloadGenerator.
func (g *HubPayloadGenerator) GeneratePayload(_ *Station) ([]byte, error) {
	values := make(map[string]*float64, len(types.Channels))
	for _, channel := range types.Channels {
		if g.DropRate > 0 && rand.Float64() < g.DropRate {
			continue
		}
		bounds := ranges[channel]
		v := bounds[0] + rand.Float64()*(bounds[1]-bounds[0])
		values[channel] = &v
	}
	return json.Marshal(types.HubPayload{
		TS:     time.Now().UnixMilli(),
		Values: values,
	})
}
