// Command recursor decomposes a task into a tree of sub-tasks and streams the
// tree as it is processed.
package main

func main() {
	Execute()
}
