package model

type Template struct {
	ID        int64
	Milestone string
	IsActive  bool
	Subject   string
	Body      string
}
