package chain

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mbd888/statewatch/pkg/monitor"
)

// FromABI converts the decoded output values of a contract call into a
// monitor.Value. A single output becomes a scalar; multiple outputs
// become a record keyed both by output name and by position, the same
// dual exposure web-style decoders produce (monitor equality ignores
// the positional duplicates).
func FromABI(outputs abi.Arguments, vals []any) (monitor.Value, error) {
	if len(vals) == 1 {
		return convertValue(vals[0])
	}

	rec := make(monitor.Record, 2*len(vals))
	for i, v := range vals {
		cv, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		rec[strconv.Itoa(i)] = cv
		if i < len(outputs) && outputs[i].Name != "" {
			rec[outputs[i].Name] = cv
		}
	}
	return rec, nil
}

// convertValue maps one decoded Go value onto the monitor value union.
// Integers that may not fit a float64 stay exact as big integers.
func convertValue(v any) (monitor.Value, error) {
	switch x := v.(type) {
	case *big.Int:
		return monitor.Big(x), nil
	case bool:
		return monitor.Bool(x), nil
	case string:
		return monitor.String(x), nil
	case common.Address:
		return monitor.String(x.Hex()), nil
	case common.Hash:
		return monitor.String(x.Hex()), nil
	case [32]byte:
		return monitor.String(hexutil.Encode(x[:])), nil
	case []byte:
		return monitor.String(hexutil.Encode(x)), nil
	case uint8:
		return monitor.Number(x), nil
	case uint16:
		return monitor.Number(x), nil
	case uint32:
		return monitor.Number(x), nil
	case int8:
		return monitor.Number(x), nil
	case int16:
		return monitor.Number(x), nil
	case int32:
		return monitor.Number(x), nil
	case uint64:
		return monitor.Big(new(big.Int).SetUint64(x)), nil
	case int64:
		return monitor.Big(big.NewInt(x)), nil
	}

	// Tuple outputs decode into anonymous structs; expose their fields
	// by name and by position like top-level outputs.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Struct {
		rec := make(monitor.Record, 2*rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			cv, err := convertValue(rv.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			rec[strconv.Itoa(i)] = cv
			rec[rv.Type().Field(i).Name] = cv
		}
		return rec, nil
	}

	return nil, fmt.Errorf("chain: unsupported ABI value type %T", v)
}
