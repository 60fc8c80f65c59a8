package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           dermd API
// @version         1.0
// @description     Skin condition classification service for companion-animal images.
//
// @contact.name   dermd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
