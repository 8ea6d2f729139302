package executor

import "fmt"

// mergeRaw folds source into target at path, zipping lists elementwise.
// target and source are wire-keyed response fragments; the shape-directed
// coercion pass happens later, once every step's fragment has landed.
func mergeRaw(target map[string]any, source any, path []string) error {
	if len(path) == 0 {
		sourceMap, ok := source.(map[string]any)
		if !ok {
			return fmt.Errorf("merge source must be an object at the root, got %T", source)
		}
		for k, v := range sourceMap {
			if existing, ok := target[k].(map[string]any); ok {
				if incoming, ok := v.(map[string]any); ok {
					if err := mergeRaw(existing, incoming, nil); err != nil {
						return err
					}
					continue
				}
			}
			if v == nil && target[k] != nil {
				continue // first non-null value wins
			}
			target[k] = v
		}
		return nil
	}

	key := path[0]
	rest := path[1:]

	value, exists := target[key]
	if !exists || value == nil {
		if len(rest) > 0 {
			next := make(map[string]any)
			target[key] = next
			value = next
		} else {
			target[key] = source
			return nil
		}
	}

	switch v := value.(type) {
	case []any:
		sourceList, ok := source.([]any)
		if !ok {
			return fmt.Errorf("merge source must be a list at %q, got %T", key, source)
		}
		if len(v) != len(sourceList) {
			return fmt.Errorf("list length mismatch at %q: have %d, merging %d", key, len(v), len(sourceList))
		}
		for i := range v {
			elem, ok := v[i].(map[string]any)
			if !ok {
				continue
			}
			if err := mergeRaw(elem, sourceList[i], rest); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		if len(rest) == 0 {
			return mergeRaw(v, source, nil)
		}
		return mergeRaw(v, source, rest)
	default:
		return fmt.Errorf("cannot merge into scalar at %q", key)
	}
}
