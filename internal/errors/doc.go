// Package errors provides structured errors for devserve.
//
// Every failure the server can hit is registered with a code and a category:
//
//	E100-E109  config   bad port, malformed mount spec, unreadable config file
//	E110       bind     the listen socket could not be opened
//	E120-E121  watch    the watch root could not be watched, or the watch died
//	E130       request  no file at the resolved path (served as 404)
//	E140       session  a reload could not be delivered to a browser tab
//
// Config, bind and watch errors stop the process. Request and session
// errors are recovered where they happen and only logged.
//
// # Usage
//
//	err := errors.New("E102").WithDetail(fmt.Sprintf("token %q has no ':'", tok))
//	errors.PrintError(err)
package errors
