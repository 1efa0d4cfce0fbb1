package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// decodeProtocol reads the protocol identifiers either from a standalone JSON file
// (protocol-file) or from the protocol section of the config, env included.
func decodeProtocol(v *viper.Viper) (model.Protocol, error) {
	if path := strings.TrimSpace(v.GetString("protocol-file")); path != "" {
		return LoadProtocolFile(path)
	}

	p := model.Protocol{
		Network:                  v.GetString("protocol.network"),
		StabilityPoolScripts:     getStringSlice(v, "protocol.stability_pool_scripts"),
		StabilityPoolDatumHashes: getStringSlice(v, "protocol.stability_pool_datum_hashes"),
		RobScripts:               getStringSlice(v, "protocol.rob_scripts"),
		RobDatumHashes:           getStringSlice(v, "protocol.rob_datum_hashes"),
		StakingScripts:           getStringSlice(v, "protocol.staking_scripts"),
		IAssetPolicies:           getStringSlice(v, "protocol.iasset_policies"),
		IndyPolicy:               v.GetString("protocol.indy_policy"),
		Rates:                    getStringMap(v, "protocol.rates"),
	}
	if v.IsSet("protocol.stability_pool_datum") {
		var shape model.DatumShape
		if err := v.UnmarshalKey("protocol.stability_pool_datum", &shape); err != nil {
			return model.Protocol{}, fmt.Errorf("decode protocol.stability_pool_datum: %w", err)
		}
		p.StabilityPoolDatum = &shape
	}
	if v.IsSet("protocol.rob_datum") {
		var shape model.DatumShape
		if err := v.UnmarshalKey("protocol.rob_datum", &shape); err != nil {
			return model.Protocol{}, fmt.Errorf("decode protocol.rob_datum: %w", err)
		}
		p.RobDatum = &shape
	}
	if v.IsSet("protocol.rob_cancel_redeemer") {
		ctor := v.GetInt("protocol.rob_cancel_redeemer")
		p.RobCancelRedeemer = &ctor
	}
	return p.Normalize(), nil
}

// LoadProtocolFile reads protocol identifiers from a JSON document.
func LoadProtocolFile(path string) (model.Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Protocol{}, fmt.Errorf("read protocol file: %w", err)
	}
	var p model.Protocol
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Protocol{}, fmt.Errorf("parse protocol file: %w", err)
	}
	return p.Normalize(), nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
