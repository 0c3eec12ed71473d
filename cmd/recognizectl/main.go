// Command recognizectl manages a recognize.im image corpus and runs
// recognitions from the command line.
package main

func main() {
	Execute()
}
