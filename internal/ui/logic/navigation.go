package logic

// Navigator handles cursor movement and the viewport over a flat list
type Navigator struct {
	selectedIndex  int
	viewportOffset int
	viewportHeight int
	totalItems     int
}

// NewNavigator creates a new navigator
func NewNavigator() *Navigator {
	return &Navigator{viewportHeight: 20}
}

// UpdateState updates the navigator's state
func (n *Navigator) UpdateState(selectedIndex, viewportOffset, viewportHeight, totalItems int) {
	n.selectedIndex = selectedIndex
	n.viewportOffset = viewportOffset
	n.viewportHeight = viewportHeight
	n.totalItems = totalItems
}

// SelectedIndex returns the current selected index
func (n *Navigator) SelectedIndex() int {
	return n.selectedIndex
}

// ViewportOffset returns the current viewport offset
func (n *Navigator) ViewportOffset() int {
	return n.viewportOffset
}

// SetViewportHeight changes the number of rows available to the list
func (n *Navigator) SetViewportHeight(height int) {
	if height < 1 {
		height = 1
	}
	n.viewportHeight = height
	n.ensureSelectedVisible()
}

// SetTotal updates the item count, clamping the cursor. A shrinking list
// (new search) keeps the cursor in range; a growing list (next page) leaves
// it where it is.
func (n *Navigator) SetTotal(total int) {
	n.totalItems = total
	if n.selectedIndex > n.maxIndex() {
		n.selectedIndex = n.maxIndex()
	}
	if n.viewportOffset > n.selectedIndex {
		n.viewportOffset = n.selectedIndex
	}
	n.ensureSelectedVisible()
}

// Reset moves the cursor back to the top
func (n *Navigator) Reset() {
	n.selectedIndex = 0
	n.viewportOffset = 0
}

// Move applies a direction and returns the new selected index
func (n *Navigator) Move(direction string) int {
	page := n.viewportHeight - 2 // Leave some overlap
	if page < 1 {
		page = 1
	}

	switch direction {
	case "up":
		n.selectedIndex--
	case "down":
		n.selectedIndex++
	case "pageup":
		n.selectedIndex -= page
	case "pagedown":
		n.selectedIndex += page
	case "home":
		n.selectedIndex = 0
	case "end":
		n.selectedIndex = n.maxIndex()
	}

	if n.selectedIndex < 0 {
		n.selectedIndex = 0
	}
	if n.selectedIndex > n.maxIndex() {
		n.selectedIndex = n.maxIndex()
	}
	n.ensureSelectedVisible()
	return n.selectedIndex
}

// NearEnd reports whether the cursor is within distance rows of the last
// item, which is where the infinite scroll sentinel becomes visible
func (n *Navigator) NearEnd(distance int) bool {
	if n.totalItems == 0 {
		return false
	}
	return n.selectedIndex >= n.totalItems-1-distance
}

func (n *Navigator) maxIndex() int {
	if n.totalItems == 0 {
		return 0
	}
	return n.totalItems - 1
}

// ensureSelectedVisible adjusts the viewport to keep the selected item visible
func (n *Navigator) ensureSelectedVisible() {
	totalItems := n.totalItems

	// If selected item is above viewport, scroll up
	if n.selectedIndex < n.viewportOffset {
		n.viewportOffset = n.selectedIndex
	}

	// Determine if we'll have scroll indicators
	needsTopIndicator := n.viewportOffset > 0
	needsBottomIndicator := n.viewportOffset+n.viewportHeight < totalItems

	if !needsBottomIndicator && needsTopIndicator {
		remainingItems := totalItems - n.viewportOffset
		availableSpace := n.viewportHeight - 1 // -1 for top indicator
		if remainingItems > availableSpace {
			needsBottomIndicator = true
		}
	}

	// Calculate effective visible area
	effectiveHeight := n.viewportHeight
	if needsTopIndicator {
		effectiveHeight--
	}
	if needsBottomIndicator {
		effectiveHeight--
	}
	if effectiveHeight < 1 {
		effectiveHeight = 1
	}

	// If selected item is below effective viewport, scroll down
	if n.selectedIndex >= n.viewportOffset+effectiveHeight {
		newOffset := n.selectedIndex - effectiveHeight + 1

		// Near the bottom, show all remaining items
		maxPossibleOffset := totalItems - effectiveHeight
		if maxPossibleOffset < 0 {
			maxPossibleOffset = 0
		}
		if newOffset > maxPossibleOffset {
			newOffset = maxPossibleOffset
		}
		if newOffset < 0 {
			newOffset = 0
		}
		n.viewportOffset = newOffset
	}
}
