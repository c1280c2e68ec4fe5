package axisdb

import "fmt"

// CopyStorage copies every axis, scalar, vector, and matrix from src into
// dst. It is the migration path between backends: populate a memory store,
// copy it into a files or sqlite store, or the other way around.
//
// Axes are copied first so dst implementations that validate against axes
// see them in place. Existing entities in dst with the same names are
// overwritten; other dst content is left alone.
func CopyStorage(dst, src Storage) error {
	axes, err := src.AxisNames()
	if err != nil {
		return fmt.Errorf("copy: list axes: %w", err)
	}
	for _, axis := range axes {
		entries, err := src.AxisEntries(axis)
		if err != nil {
			return fmt.Errorf("copy axis %q: %w", axis, err)
		}
		if err := dst.SetAxis(axis, entries); err != nil {
			return fmt.Errorf("copy axis %q: %w", axis, err)
		}
	}

	scalars, err := src.ScalarNames()
	if err != nil {
		return fmt.Errorf("copy: list scalars: %w", err)
	}
	for _, name := range scalars {
		v, err := src.GetScalar(name)
		if err != nil {
			return fmt.Errorf("copy scalar %q: %w", name, err)
		}
		if err := dst.SetScalar(name, v); err != nil {
			return fmt.Errorf("copy scalar %q: %w", name, err)
		}
	}

	for _, axis := range axes {
		names, err := src.VectorNames(axis)
		if err != nil {
			return fmt.Errorf("copy: list vectors of %q: %w", axis, err)
		}
		for _, name := range names {
			vec, err := src.GetVector(axis, name)
			if err != nil {
				return fmt.Errorf("copy vector %q of %q: %w", name, axis, err)
			}
			if err := dst.SetVector(axis, name, vec); err != nil {
				return fmt.Errorf("copy vector %q of %q: %w", name, axis, err)
			}
		}
	}

	for _, rowAxis := range axes {
		for _, colAxis := range axes {
			names, err := src.MatrixNames(rowAxis, colAxis)
			if err != nil {
				return fmt.Errorf("copy: list matrices of %q, %q: %w", rowAxis, colAxis, err)
			}
			for _, name := range names {
				m, err := src.GetMatrix(rowAxis, colAxis, name)
				if err != nil {
					return fmt.Errorf("copy matrix %q of %q, %q: %w", name, rowAxis, colAxis, err)
				}
				if err := dst.SetMatrix(rowAxis, colAxis, name, m); err != nil {
					return fmt.Errorf("copy matrix %q of %q, %q: %w", name, rowAxis, colAxis, err)
				}
			}
		}
	}
	return nil
}
