package models

type AppDID string

type AppDescriptor struct {
	AppDID         AppDID `json:"appDId"`
	AppName        string `json:"appName"`
	AppProvider    string `json:"appProvider"`
	AppSoftVersion string `json:"appSoftVersion"`
	AppDVersion    string `json:"appDVersion"`
	AppDescription string `json:"appDescription"`
}
