package packages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/circonus-labs/cosi-server/internal/domain"
)

// versionEntries holds the entries of one version, in file order.
type versionEntries struct {
	vers    string
	entries []domain.PackageEntry
}

// distVersions holds the versions of one distribution, in file order.
type distVersions struct {
	dist     string
	versions []versionEntries
}

// decodeJSON decodes a package list keeping the order of its object keys,
// which encoding/json maps would lose.
func decodeJSON(content []byte) ([]distVersions, error) {
	dec := json.NewDecoder(bytes.NewReader(content))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var list []distVersions
	for dec.More() {
		dist, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("distribution %q: %w", dist, err)
		}

		dv := distVersions{dist: dist}
		for dec.More() {
			vers, err := stringToken(dec)
			if err != nil {
				return nil, err
			}
			var entries []domain.PackageEntry
			if err := dec.Decode(&entries); err != nil {
				return nil, fmt.Errorf("%s %s: %w", dist, vers, err)
			}
			dv.versions = append(dv.versions, versionEntries{vers: vers, entries: entries})
		}

		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		list = append(list, dv)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after package list")
	}

	return list, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected key, got %v", tok)
	}
	return s, nil
}

// decodeYAML decodes a package list keeping the order of its mapping keys.
func decodeYAML(content []byte) ([]distVersions, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return nil, nil
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of distributions", root.Line)
	}

	var list []distVersions
	for i := 0; i+1 < len(root.Content); i += 2 {
		dist := root.Content[i].Value
		versions := root.Content[i+1]
		if versions.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: expected a mapping of versions for %q", versions.Line, dist)
		}

		dv := distVersions{dist: dist}
		for j := 0; j+1 < len(versions.Content); j += 2 {
			vers := versions.Content[j].Value
			var entries []domain.PackageEntry
			if err := versions.Content[j+1].Decode(&entries); err != nil {
				return nil, fmt.Errorf("%s %s: %w", dist, vers, err)
			}
			dv.versions = append(dv.versions, versionEntries{vers: vers, entries: entries})
		}
		list = append(list, dv)
	}

	return list, nil
}
