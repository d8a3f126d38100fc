// Code generated by hand for tests. DO NOT EDIT.

package cart

func generated() int {
	return 1
}
