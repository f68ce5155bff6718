//go:build !race

package lazarus

func passwordHashCost() int {
	return 12
}
