// Command ciuse runs the CIU secure element outside of a full emulator.
package main

func main() {
	Execute()
}
