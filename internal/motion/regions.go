package motion

import "image"

// ExtractRegions returns the outer connected regions of a binary mask.
//
// Foreground pixels are grouped with 8-connectivity. A region is reported
// only if it borders the background that reaches the image edge
// (4-connected, with everything outside the image counted as background);
// regions sitting inside a hole of another region are nested and skipped.
// Regions are returned in raster order of their first pixel.
func ExtractRegions(mask *image.Gray) []Region {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	fg := make([]bool, w*h)
	found := false
	for y := 0; y < h; y++ {
		row := mask.Pix[mask.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			if row[x] != 0 {
				fg[y*w+x] = true
				found = true
			}
		}
	}
	if !found {
		return nil
	}

	outside := markOutside(fg, w, h)

	visited := make([]bool, w*h)
	stack := make([]int, 0, 256)
	var regions []Region

	for start := range fg {
		if !fg[start] || visited[start] {
			continue
		}

		sx, sy := start%w, start/w
		minX, minY, maxX, maxY := sx, sy, sx, sy
		area := 0
		external := false

		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			if !external {
				if x == 0 || y == 0 || x == w-1 || y == h-1 ||
					outside[i-1] || outside[i+1] || outside[i-w] || outside[i+w] {
					external = true
				}
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					j := ny*w + nx
					if fg[j] && !visited[j] {
						visited[j] = true
						stack = append(stack, j)
					}
				}
			}
		}

		if external {
			regions = append(regions, Region{
				X:      minX + b.Min.X,
				Y:      minY + b.Min.Y,
				Width:  maxX - minX + 1,
				Height: maxY - minY + 1,
				Area:   area,
			})
		}
	}
	return regions
}

// markOutside flags background pixels 4-connected to the image border.
func markOutside(fg []bool, w, h int) []bool {
	outside := make([]bool, w*h)
	stack := make([]int, 0, 2*(w+h))

	seed := func(i int) {
		if !fg[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		seed(x)
		seed((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		seed(y * w)
		seed(y*w + w - 1)
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			seed(i - 1)
		}
		if x < w-1 {
			seed(i + 1)
		}
		if y > 0 {
			seed(i - w)
		}
		if y < h-1 {
			seed(i + w)
		}
	}
	return outside
}
