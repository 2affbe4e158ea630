/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package frame

import (
	"bytes"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultSampleRows is the number of rows shown to the model.
const DefaultSampleRows = 10

// Sample serializes the first n rows as a YAML list of records.
// Keys follow the dataset's column order. An empty dataset yields "[]".
func Sample(ds *Dataset, n int) (string, error) {
	head := ds.Head(n)
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for r := 0; r < head.NumRows(); r++ {
		rec := &yaml.Node{Kind: yaml.MappingNode}
		for _, c := range head.cols {
			rec.Content = append(rec.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name},
				scalarNode(c.Values[r]),
			)
		}
		seq.Content = append(seq.Content, rec)
	}
	if len(seq.Content) == 0 {
		seq.Style = yaml.FlowStyle
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func scalarNode(v Value) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch x := v.(type) {
	case nil:
		n.Tag, n.Value = "!!null", "null"
	case bool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(x)
	case float64:
		if isIntegral(x) {
			n.Tag, n.Value = "!!int", strconv.FormatInt(int64(x), 10)
		} else {
			n.Tag, n.Value = "!!float", strconv.FormatFloat(x, 'g', -1, 64)
		}
	default:
		n.Tag, n.Value = "!!str", FormatValue(x)
	}
	return n
}
