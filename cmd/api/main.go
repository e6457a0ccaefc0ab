package main

import "log"

func main() {

	server, cleanup, err := InitializeServer()
	if err != nil {
		log.Fatal(err)
		return
	}
	defer cleanup()

	if err = server.Run(); err != nil {
		log.Println(err.Error())
	}

}
