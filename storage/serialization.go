// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/poiesic/sheetvec/core"
)

// storedVector is the persisted form of core.Vector.
type storedVector struct {
	Id       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MarshalVector serializes a Vector to bytes.
func MarshalVector(v *core.Vector) ([]byte, error) {
	data, err := sonic.Marshal(storedVector{Id: v.Id, Values: v.Values, Metadata: v.Metadata})
	if err != nil {
		return nil, fmt.Errorf("%w: vector %s: %v", ErrSerializationFailed, v.Id, err)
	}
	return data, nil
}

// UnmarshalVector deserializes a Vector from bytes.
func UnmarshalVector(data []byte) (*core.Vector, error) {
	var sv storedVector
	if err := sonic.Unmarshal(data, &sv); err != nil {
		return nil, fmt.Errorf("%w: vector: %v", ErrSerializationFailed, err)
	}
	if sv.Id == "" {
		return nil, fmt.Errorf("%w: vector without id", ErrSerializationFailed)
	}
	return &core.Vector{Id: sv.Id, Values: sv.Values, Metadata: sv.Metadata}, nil
}

// MarshalMetadata serializes vector metadata, e.g. for a jsonb column.
func MarshalMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		md = map[string]string{}
	}
	data, err := sonic.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalMetadata deserializes vector metadata.
func UnmarshalMetadata(data []byte) (map[string]string, error) {
	md := map[string]string{}
	if len(data) == 0 {
		return md, nil
	}
	if err := sonic.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrSerializationFailed, err)
	}
	return md, nil
}

// MarshalNamespaceInfo serializes namespace metadata to bytes.
func MarshalNamespaceInfo(info *core.NamespaceInfo) ([]byte, error) {
	data, err := sonic.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("%w: namespace %s: %v", ErrSerializationFailed, info.Namespace, err)
	}
	return data, nil
}

// UnmarshalNamespaceInfo deserializes namespace metadata from bytes.
func UnmarshalNamespaceInfo(data []byte) (*core.NamespaceInfo, error) {
	var info core.NamespaceInfo
	if err := sonic.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: namespace: %v", ErrSerializationFailed, err)
	}
	return &info, nil
}

// MarshalRun serializes an IngestionRun to bytes.
func MarshalRun(run *core.IngestionRun) ([]byte, error) {
	data, err := sonic.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("%w: run %s: %v", ErrSerializationFailed, run.Id, err)
	}
	return data, nil
}

// UnmarshalRun deserializes an IngestionRun from bytes.
func UnmarshalRun(data []byte) (*core.IngestionRun, error) {
	var run core.IngestionRun
	if err := sonic.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("%w: run: %v", ErrSerializationFailed, err)
	}
	return &run, nil
}
